package classes

import (
	"fmt"
	"math/big"
)

// VersionID is a major.minor.patch triple as stored in a felt-stream header.
type VersionID struct {
	Major, Minor, Patch uint64
}

func (v VersionID) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// VersionHeaderLen is the number of felts in a 1.x program header.
const VersionHeaderLen = 6

// VersionHeader renders the 1.x header: the Sierra version followed by the
// version of the compiler that produced the program.
func VersionHeader(sierraVersion, compilerVersion VersionID) []*big.Int {
	out := make([]*big.Int, 0, VersionHeaderLen)
	for _, v := range []uint64{
		sierraVersion.Major, sierraVersion.Minor, sierraVersion.Patch,
		compilerVersion.Major, compilerVersion.Minor, compilerVersion.Patch,
	} {
		out = append(out, new(big.Int).SetUint64(v))
	}
	return out
}

// ReadVersionHeader splits a 1.x felt stream into its versions and body.
func ReadVersionHeader(felts []*big.Int) (sierraVersion, compilerVersion VersionID, body []*big.Int, err error) {
	if len(felts) < VersionHeaderLen {
		return VersionID{}, VersionID{}, nil, fmt.Errorf("felt stream of %d words has no version header", len(felts))
	}
	var parts [VersionHeaderLen]uint64
	for i := range parts {
		if !felts[i].IsUint64() {
			return VersionID{}, VersionID{}, nil, fmt.Errorf("version header word %d is not a small integer", i)
		}
		parts[i] = felts[i].Uint64()
	}
	sierraVersion = VersionID{parts[0], parts[1], parts[2]}
	compilerVersion = VersionID{parts[3], parts[4], parts[5]}
	return sierraVersion, compilerVersion, felts[VersionHeaderLen:], nil
}
