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

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/DavePearce/EvmTools/hexutil"
)

// ErrBadIndex indicates a template instantiation index outside the range of
// the corresponding parameter array.
var ErrBadIndex = errors.New("template index out of range")

// Transaction is one concrete transaction to be executed against a
// pre-state. A nil To indicates contract creation. Exactly one pricing shape
// is populated: GasPrice for legacy transactions, or the two fee caps for
// EIP-1559 transactions.
type Transaction struct {
	ChainID    *big.Int
	Sender     common.Address
	SecretKey  common.Hash
	To         *common.Address
	Nonce      uint64
	GasLimit   uint64
	Value      *big.Int
	Data       []byte
	AccessList types.AccessList

	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int
}

// Creation reports whether this transaction creates a contract.
func (tx *Transaction) Creation() bool { return tx.To == nil }

// Code determines the bytecode executed by this transaction: the recipient's
// code for a call, or the supplied data for a creation. Some reference tests
// parameterise creations over data precisely so that the initcode varies per
// instance.
func (tx *Transaction) Code(state WorldState) []byte {
	if tx.To == nil {
		return tx.Data
	}
	return state[*tx.To].Code
}

type transactionJSON struct {
	ChainID              string           `json:"chainId"`
	Sender               string           `json:"sender"`
	SecretKey            string           `json:"secretKey"`
	To                   string           `json:"to,omitempty"`
	GasLimit             string           `json:"gasLimit"`
	Nonce                string           `json:"nonce"`
	Value                string           `json:"value"`
	Input                string           `json:"input"`
	AccessList           types.AccessList `json:"accessList,omitempty"`
	GasPrice             string           `json:"gasPrice,omitempty"`
	MaxPriorityFeePerGas string           `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas         string           `json:"maxFeePerGas,omitempty"`
}

// MarshalJSON implements json.Marshaler. Addresses and the secret key are
// fixed-width quantities; everything else is minimal even-width hex.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	out := transactionJSON{
		ChainID:    hexutil.EncodeBig(tx.ChainID),
		Sender:     hexutil.Encode(tx.Sender[:]),
		SecretKey:  hexutil.Encode(tx.SecretKey[:]),
		GasLimit:   hexutil.EncodeUint64(tx.GasLimit),
		Nonce:      hexutil.EncodeUint64(tx.Nonce),
		Value:      hexutil.EncodeBig(tx.Value),
		Input:      hexutil.Encode(tx.Data),
		AccessList: tx.AccessList,
	}
	if tx.To != nil {
		out.To = hexutil.Encode(tx.To[:])
	}
	switch {
	case tx.GasPrice != nil:
		out.GasPrice = hexutil.EncodeBig(tx.GasPrice)
	case tx.MaxPriorityFeePerGas != nil && tx.MaxFeePerGas != nil:
		out.MaxPriorityFeePerGas = hexutil.EncodeBig(tx.MaxPriorityFeePerGas)
		out.MaxFeePerGas = hexutil.EncodeBig(tx.MaxFeePerGas)
	default:
		return nil, errors.New("transaction has neither gasPrice nor fee caps")
	}
	return json.Marshal(&out)
}

// UnmarshalJSON implements json.Unmarshaler. The transaction variant is
// selected by the pricing fields present; anything else is an unsupported
// transaction shape.
func (tx *Transaction) UnmarshalJSON(input []byte) error {
	var dec transactionJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	sender, err := decodeAddress(dec.Sender)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	secret, err := decodeHash(dec.SecretKey)
	if err != nil {
		return fmt.Errorf("secretKey: %w", err)
	}
	gasLimit, err := decodeUint64(dec.GasLimit)
	if err != nil {
		return fmt.Errorf("gasLimit: %w", err)
	}
	nonce, err := decodeUint64(dec.Nonce)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	value, err := hexutil.DecodeBig(dec.Value)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	var data []byte
	if dec.Input != "" {
		if data, err = hexutil.Decode(dec.Input); err != nil {
			return fmt.Errorf("input: %w", err)
		}
		if len(data) == 0 {
			data = nil
		}
	}
	chainID := big.NewInt(1)
	if dec.ChainID != "" {
		if chainID, err = hexutil.DecodeBig(dec.ChainID); err != nil {
			return fmt.Errorf("chainId: %w", err)
		}
	}
	*tx = Transaction{
		ChainID:    chainID,
		Sender:     sender,
		SecretKey:  secret,
		Nonce:      nonce,
		GasLimit:   gasLimit,
		Value:      value,
		Data:       data,
		AccessList: dec.AccessList,
	}
	if dec.To != "" {
		to, err := decodeAddress(dec.To)
		if err != nil {
			return fmt.Errorf("to: %w", err)
		}
		tx.To = &to
	}
	switch {
	case dec.GasPrice != "":
		if tx.GasPrice, err = hexutil.DecodeBig(dec.GasPrice); err != nil {
			return fmt.Errorf("gasPrice: %w", err)
		}
	case dec.MaxPriorityFeePerGas != "" && dec.MaxFeePerGas != "":
		if tx.MaxPriorityFeePerGas, err = hexutil.DecodeBig(dec.MaxPriorityFeePerGas); err != nil {
			return fmt.Errorf("maxPriorityFeePerGas: %w", err)
		}
		if tx.MaxFeePerGas, err = hexutil.DecodeBig(dec.MaxFeePerGas); err != nil {
			return fmt.Errorf("maxFeePerGas: %w", err)
		}
	default:
		return fmt.Errorf("unsupported transaction type: %s", input)
	}
	return nil
}

// Indexes selects one entry from each parameter array of a template.
type Indexes struct {
	Data  int `json:"data"`
	Gas   int `json:"gas"`
	Value int `json:"value"`
}

// Template is a transaction parameterised over gas limit, value, call data
// and (optionally) access list. Instantiating it with a set of indexes
// yields a concrete Transaction.
type Template struct {
	Tx          Transaction
	GasLimits   []uint64
	Values      []*big.Int
	Datas       [][]byte
	AccessLists []types.AccessList
}

// Instantiate produces the concrete transaction selected by the given
// indexes. Note that the access list, when present, is selected by the data
// index: the fixtures pair each data variant with an access list variant.
func (t *Template) Instantiate(idx Indexes) (*Transaction, error) {
	if idx.Gas < 0 || idx.Gas >= len(t.GasLimits) {
		return nil, fmt.Errorf("%w: gas %d of %d", ErrBadIndex, idx.Gas, len(t.GasLimits))
	}
	if idx.Value < 0 || idx.Value >= len(t.Values) {
		return nil, fmt.Errorf("%w: value %d of %d", ErrBadIndex, idx.Value, len(t.Values))
	}
	if idx.Data < 0 || idx.Data >= len(t.Datas) {
		return nil, fmt.Errorf("%w: data %d of %d", ErrBadIndex, idx.Data, len(t.Datas))
	}
	tx := t.Tx
	tx.GasLimit = t.GasLimits[idx.Gas]
	tx.Value = t.Values[idx.Value]
	tx.Data = t.Datas[idx.Data]
	if t.AccessLists != nil {
		if idx.Data >= len(t.AccessLists) {
			return nil, fmt.Errorf("%w: access list %d of %d", ErrBadIndex, idx.Data, len(t.AccessLists))
		}
		tx.AccessList = t.AccessLists[idx.Data]
	}
	return &tx, nil
}

type templateJSON struct {
	Sender               *common.Address       `json:"sender"`
	SecretKey            *common.Hash          `json:"secretKey"`
	To                   string                `json:"to"`
	Nonce                math.HexOrDecimal64   `json:"nonce"`
	GasPrice             *math.HexOrDecimal256 `json:"gasPrice"`
	MaxPriorityFeePerGas *math.HexOrDecimal256 `json:"maxPriorityFeePerGas"`
	MaxFeePerGas         *math.HexOrDecimal256 `json:"maxFeePerGas"`
	GasLimit             []math.HexOrDecimal64 `json:"gasLimit"`
	Value                []string              `json:"value"`
	Data                 []string              `json:"data"`
	AccessLists          []types.AccessList    `json:"accessLists"`
}

// UnmarshalJSON parses a transaction template in the shape used by the
// Ethereum reference state tests.
func (t *Template) UnmarshalJSON(input []byte) error {
	var dec templateJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if dec.Sender == nil || dec.SecretKey == nil {
		return errors.New("transaction template misses sender or secretKey")
	}
	tx := Transaction{
		ChainID:   big.NewInt(1),
		Sender:    *dec.Sender,
		SecretKey: *dec.SecretKey,
		Nonce:     uint64(dec.Nonce),
	}
	if dec.To != "" {
		to, err := decodeAddress(dec.To)
		if err != nil {
			return fmt.Errorf("to: %w", err)
		}
		tx.To = &to
	}
	switch {
	case dec.GasPrice != nil:
		tx.GasPrice = (*big.Int)(dec.GasPrice)
	case dec.MaxPriorityFeePerGas != nil && dec.MaxFeePerGas != nil:
		tx.MaxPriorityFeePerGas = (*big.Int)(dec.MaxPriorityFeePerGas)
		tx.MaxFeePerGas = (*big.Int)(dec.MaxFeePerGas)
	default:
		return fmt.Errorf("unsupported transaction template: %s", input)
	}
	tmpl := Template{
		Tx:        tx,
		GasLimits: make([]uint64, len(dec.GasLimit)),
		Values:    make([]*big.Int, len(dec.Value)),
		Datas:     make([][]byte, len(dec.Data)),
	}
	for i, g := range dec.GasLimit {
		tmpl.GasLimits[i] = uint64(g)
	}
	for i, v := range dec.Value {
		value, err := hexutil.DecodeBig(v)
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		tmpl.Values[i] = value
	}
	for i, d := range dec.Data {
		data, err := hexutil.Decode(d)
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		tmpl.Datas[i] = data
	}
	if dec.AccessLists != nil {
		tmpl.AccessLists = dec.AccessLists
	}
	*t = tmpl
	return nil
}

func decodeAddress(s string) (common.Address, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Address{}, err
	}
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("address %q has %d bytes", s, len(b))
	}
	return common.BytesToAddress(b), nil
}

func decodeHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("hash %q has %d bytes", s, len(b))
	}
	return common.BytesToHash(b), nil
}

func decodeUint64(s string) (uint64, error) {
	n, err := hexutil.DecodeBig(s)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("quantity %q overflows uint64", s)
	}
	return n.Uint64(), nil
}
