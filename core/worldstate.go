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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DavePearce/EvmTools/hexutil"
)

// Account is the pre-state of one account: balance, nonce, storage and code.
type Account struct {
	Balance *big.Int
	Nonce   uint64
	Storage map[common.Hash]common.Hash
	Code    []byte
}

// WorldState maps addresses to accounts. It is built once from the fixture
// and read-only thereafter; the same JSON shape doubles as the allocation
// input of the external tool.
type WorldState map[common.Address]Account

type accountJSON struct {
	Balance string            `json:"balance"`
	Nonce   string            `json:"nonce"`
	Storage map[string]string `json:"storage"`
	Code    string            `json:"code"`
}

// MarshalJSON implements json.Marshaler. Storage keys and values are written
// as full 32-byte quantities, which geth requires on its allocation input.
func (a Account) MarshalJSON() ([]byte, error) {
	out := accountJSON{
		Balance: hexutil.EncodeBig(a.Balance),
		Nonce:   hexutil.EncodeUint64(a.Nonce),
		Storage: make(map[string]string, len(a.Storage)),
		Code:    hexutil.Encode(a.Code),
	}
	for key, value := range a.Storage {
		out.Storage[hexutil.Encode(key[:])] = hexutil.Encode(value[:])
	}
	return json.Marshal(&out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Account) UnmarshalJSON(input []byte) error {
	var dec accountJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	balance, err := hexutil.DecodeBig(dec.Balance)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	nonce, err := decodeUint64(dec.Nonce)
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	var code []byte
	if dec.Code != "" {
		if code, err = hexutil.Decode(dec.Code); err != nil {
			return fmt.Errorf("code: %w", err)
		}
	}
	if len(code) == 0 {
		code = nil
	}
	storage := make(map[common.Hash]common.Hash, len(dec.Storage))
	for key, value := range dec.Storage {
		k, err := hexutil.DecodeBig(key)
		if err != nil {
			return fmt.Errorf("storage key %q: %w", key, err)
		}
		v, err := hexutil.DecodeBig(value)
		if err != nil {
			return fmt.Errorf("storage value %q: %w", value, err)
		}
		storage[common.BigToHash(k)] = common.BigToHash(v)
	}
	*a = Account{Balance: balance, Nonce: nonce, Storage: storage, Code: code}
	return nil
}

// MarshalJSON implements json.Marshaler with addresses as plain lower-case
// hex keys.
func (ws WorldState) MarshalJSON() ([]byte, error) {
	out := make(map[string]Account, len(ws))
	for addr, account := range ws {
		out[hexutil.Encode(addr[:])] = account
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ws *WorldState) UnmarshalJSON(input []byte) error {
	var dec map[string]Account
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	state := make(WorldState, len(dec))
	for key, account := range dec {
		addr, err := decodeAddress(key)
		if err != nil {
			return fmt.Errorf("account %q: %w", key, err)
		}
		state[addr] = account
	}
	*ws = state
	return nil
}
