package sierra

import (
	"fmt"
	"math/big"
)

// packedPayloadBits is the number of bits used per packed felt; staying below
// 251 keeps every packed value inside the field.
const packedPayloadBits = 250

// Compress applies dictionary compression to body words:
//
//	code_size, n_dict, dict*, n_packed, packed*
//
// The dictionary holds unique words in first-occurrence order; each packed
// felt stores as many fixed-width dictionary indices as fit in 250 bits,
// least significant first.
func Compress(words []*big.Int) []*big.Int {
	index := make(map[string]int)
	var dict []*big.Int
	codes := make([]int, len(words))
	for i, w := range words {
		key := w.Text(16)
		idx, ok := index[key]
		if !ok {
			idx = len(dict)
			index[key] = idx
			dict = append(dict, w)
		}
		codes[i] = idx
	}

	bits := indexBits(len(dict))
	perFelt := packedPayloadBits / bits

	var packed []*big.Int
	for start := 0; start < len(codes); start += perFelt {
		end := min(start+perFelt, len(codes))
		v := new(big.Int)
		for j := end - 1; j >= start; j-- {
			v.Lsh(v, uint(bits))
			v.Or(v, big.NewInt(int64(codes[j])))
		}
		packed = append(packed, v)
	}

	out := make([]*big.Int, 0, 3+len(dict)+len(packed))
	out = append(out, big.NewInt(int64(len(words))), big.NewInt(int64(len(dict))))
	out = append(out, dict...)
	out = append(out, big.NewInt(int64(len(packed))))
	out = append(out, packed...)
	return out
}

// Decompress reverses Compress. The whole input must be consumed.
func Decompress(felts []*big.Int) ([]*big.Int, error) {
	r := &wordReader{words: felts}

	codeSize, err := r.uint()
	if err != nil {
		return nil, fmt.Errorf("code size: %w", err)
	}
	nDict, err := r.count("dictionary")
	if err != nil {
		return nil, err
	}
	dict := make([]*big.Int, nDict)
	for i := range dict {
		if dict[i], err = r.next(); err != nil {
			return nil, err
		}
	}
	nPacked, err := r.count("packed")
	if err != nil {
		return nil, err
	}
	if codeSize > 0 && nDict == 0 {
		return nil, fmt.Errorf("empty dictionary for %d words", codeSize)
	}

	bits := indexBits(nDict)
	perFelt := packedPayloadBits / bits
	if want := (codeSize + uint64(perFelt) - 1) / uint64(perFelt); want != uint64(nPacked) {
		return nil, fmt.Errorf("packed felt count %d does not match code size %d", nPacked, codeSize)
	}

	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
	words := make([]*big.Int, 0, codeSize)
	for i := 0; i < nPacked; i++ {
		p, err := r.next()
		if err != nil {
			return nil, err
		}
		v := new(big.Int).Set(p)
		for j := 0; j < perFelt && uint64(len(words)) < codeSize; j++ {
			idx := new(big.Int).And(v, mask)
			if !idx.IsInt64() || idx.Int64() >= int64(nDict) {
				return nil, fmt.Errorf("packed felt %d: dictionary index %s out of range", i, idx)
			}
			words = append(words, dict[idx.Int64()])
			v.Rsh(v, uint(bits))
		}
		if v.Sign() != 0 {
			return nil, fmt.Errorf("packed felt %d: trailing bits", i)
		}
	}

	if r.pos != len(felts) {
		return nil, fmt.Errorf("%d trailing felts after compressed body", len(felts)-r.pos)
	}
	return words, nil
}

func indexBits(dictSize int) int {
	bits := 1
	for (1 << bits) < dictSize {
		bits++
	}
	return bits
}
