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

// Package hexutil implements the hex encodings used throughout the trace
// test format. Unlike the conventional 0x-prefixed encoding, quantities are
// always encoded with an even number of digits (geth requires this on its
// inputs), and byte arrays may additionally be run-length abbreviated.
package hexutil

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// Errors returned by the decoding functions.
var (
	ErrEmptyString = &decError{"empty hex string"}
	ErrSyntax      = &decError{"invalid hex string"}
	ErrOddLength   = &decError{"hex string of odd length"}
	ErrBadMarker   = &decError{"malformed abbreviation marker"}
	ErrTooBig      = &decError{"hex number does not fit requested width"}
)

type decError struct{ msg string }

func (err decError) Error() string { return err.msg }

// Decode decodes a hex string with optional 0x prefix. The number of digits
// must be even.
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return nil, ErrEmptyString
	}
	input = strip0x(input)
	if len(input)%2 != 0 {
		return nil, ErrOddLength
	}
	b, err := hex.DecodeString(input)
	if err != nil {
		return nil, ErrSyntax
	}
	return b, nil
}

// MustDecode decodes a hex string with optional 0x prefix. It panics for
// invalid input.
func MustDecode(input string) []byte {
	dec, err := Decode(input)
	if err != nil {
		panic("invalid hex: " + input)
	}
	return dec
}

// Encode encodes b as a 0x-prefixed hex string with two digits per byte.
func Encode(b []byte) string {
	enc := make([]byte, len(b)*2+2)
	copy(enc, "0x")
	hex.Encode(enc[2:], b)
	return string(enc)
}

// DecodeBig decodes a hex string with optional 0x prefix as an unsigned
// big integer. Unlike Decode, an odd number of digits is permitted.
func DecodeBig(input string) (*big.Int, error) {
	if len(input) == 0 {
		return nil, ErrEmptyString
	}
	input = strip0x(input)
	n, ok := new(big.Int).SetString(input, 16)
	if !ok {
		return nil, ErrSyntax
	}
	return n, nil
}

// EncodeBig encodes n as a 0x-prefixed hex quantity, zero padded to an even
// number of digits.
func EncodeBig(n *big.Int) string {
	s := n.Text(16)
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return "0x" + s
}

// EncodeBigWidth encodes n as a 0x-prefixed hex quantity of exactly width
// bytes. It fails with ErrTooBig if n does not fit.
func EncodeBigWidth(n *big.Int, width int) (string, error) {
	s := n.Text(16)
	if len(s) > 2*width {
		return "", ErrTooBig
	}
	return "0x" + strings.Repeat("0", 2*width-len(s)) + s, nil
}

// EncodeUint64 encodes n as a 0x-prefixed hex quantity, zero padded to an
// even number of digits.
func EncodeUint64(n uint64) string {
	return EncodeBig(new(big.Int).SetUint64(n))
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
