package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/usc/internal/jsondoc"
)

// DomainKey prefixes cache key hashes. The suffix changes whenever the
// key layout or the compiler output changes.
const DomainKey = "usc/cache-key/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Key computes the cache key of compiling input with command under
// settings. Object key order in input does not affect the result.
func Key(command string, input jsondoc.Value, settings any) (string, error) {
	s, err := jsondoc.FromGo(settings)
	if err != nil {
		return "", fmt.Errorf("cache key: settings: %w", err)
	}
	data, err := jsondoc.Marshal(jsondoc.Object{
		"command":  jsondoc.String(command),
		"input":    input,
		"settings": s,
	})
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	return hashWithDomain(DomainKey, data), nil
}
