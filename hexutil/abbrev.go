// Copyright 2023 The EvmTools Authors
// This file is part of EvmTools.
//
// EvmTools is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// EvmTools is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with EvmTools. If not, see <http://www.gnu.org/licenses/>.

package hexutil

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// DefaultAbbrevRun is the run length at which memory and storage dumps start
// being abbreviated.
const DefaultAbbrevRun = 16

// EncodeAbbrev encodes b as a 0x-prefixed hex string in which every maximal
// run of minRun or more identical bytes is collapsed. The first byte of the
// run is emitted literally, followed by a "~LEN~" marker where LEN is the
// number of remaining repeats (runLength-1) encoded as even-width hex:
//
//	[0x01, 0x00 x 17]  ->  "0x0100~10~"
//
// A minRun below one disables abbreviation entirely.
func EncodeAbbrev(b []byte, minRun int) string {
	if minRun < 1 {
		return Encode(b)
	}
	var sb strings.Builder
	sb.WriteString("0x")
	for i := 0; i < len(b); {
		j := i + 1
		for j < len(b) && b[j] == b[i] {
			j++
		}
		n := j - i
		sb.WriteString(hex.EncodeToString(b[i : i+1]))
		if n >= minRun {
			sb.WriteByte('~')
			sb.WriteString(evenHex(uint64(n - 1)))
			sb.WriteByte('~')
		} else {
			// Short runs are emitted verbatim.
			for k := 1; k < n; k++ {
				sb.WriteString(hex.EncodeToString(b[i : i+1]))
			}
		}
		i = j
	}
	return sb.String()
}

// DecodeAbbrev decodes a (possibly abbreviated) hex string produced by
// EncodeAbbrev, reconstructing the original byte array exactly. Plain hex
// strings decode transparently.
func DecodeAbbrev(input string) ([]byte, error) {
	if len(input) == 0 {
		return nil, ErrEmptyString
	}
	s := strip0x(input)
	var out []byte
	for i := 0; i < len(s); {
		if s[i] == '~' {
			// Run marker: repeat the previous byte LEN more times.
			if len(out) == 0 {
				return nil, ErrBadMarker
			}
			j := strings.IndexByte(s[i+1:], '~')
			if j <= 0 {
				return nil, ErrBadMarker
			}
			count, ok := new(big.Int).SetString(s[i+1:i+1+j], 16)
			if !ok || !count.IsUint64() {
				return nil, ErrBadMarker
			}
			last := out[len(out)-1]
			for k := uint64(0); k < count.Uint64(); k++ {
				out = append(out, last)
			}
			i += j + 2
			continue
		}
		if i+2 > len(s) {
			return nil, ErrOddLength
		}
		b, err := hex.DecodeString(s[i : i+2])
		if err != nil {
			return nil, ErrSyntax
		}
		out = append(out, b[0])
		i += 2
	}
	return out, nil
}

// evenHex encodes n as hex with an even number of digits.
func evenHex(n uint64) string {
	s := big.NewInt(0).SetUint64(n).Text(16)
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return s
}
