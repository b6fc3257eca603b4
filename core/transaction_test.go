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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSender = common.HexToAddress("0xa94f5374fce5edbc8e2a8697c15331677e6ebf0b")
	testKey    = common.HexToHash("0x45a915e4d060149eb4365960e6a7a45f334393093061116b197e3240065ff2d8")
	testTo     = common.HexToAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87")
)

func legacyTx() *Transaction {
	return &Transaction{
		ChainID:   big.NewInt(1),
		Sender:    testSender,
		SecretKey: testKey,
		To:        &testTo,
		Nonce:     0,
		GasLimit:  400000,
		Value:     big.NewInt(10),
		Data:      []byte{0x60, 0x01},
		GasPrice:  big.NewInt(10),
	}
}

func TestTransactionRoundTripLegacy(t *testing.T) {
	tx := legacyTx()
	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"gasPrice":"0x0a"`)
	back := new(Transaction)
	require.NoError(t, json.Unmarshal(raw, back))
	assert.Equal(t, tx, back)
}

func TestTransactionRoundTrip1559(t *testing.T) {
	tx := legacyTx()
	tx.GasPrice = nil
	tx.MaxPriorityFeePerGas = big.NewInt(1)
	tx.MaxFeePerGas = big.NewInt(3000)
	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "gasPrice")
	back := new(Transaction)
	require.NoError(t, json.Unmarshal(raw, back))
	assert.Equal(t, tx, back)
}

func TestTransactionRoundTripCreation(t *testing.T) {
	tx := legacyTx()
	tx.To = nil
	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	back := new(Transaction)
	require.NoError(t, json.Unmarshal(raw, back))
	assert.True(t, back.Creation())
	assert.Equal(t, tx, back)
}

func TestTransactionNoPricing(t *testing.T) {
	tx := legacyTx()
	tx.GasPrice = nil
	_, err := json.Marshal(tx)
	require.Error(t, err)
}

func TestTransactionCode(t *testing.T) {
	state := WorldState{
		testTo: Account{Balance: big.NewInt(0), Code: []byte{0x60, 0x00}},
	}
	tx := legacyTx()
	assert.Equal(t, []byte{0x60, 0x00}, tx.Code(state))
	tx.To = nil
	assert.Equal(t, tx.Data, tx.Code(state))
}

func testTemplate() *Template {
	return &Template{
		Tx: Transaction{
			ChainID:   big.NewInt(1),
			Sender:    testSender,
			SecretKey: testKey,
			To:        &testTo,
			GasPrice:  big.NewInt(10),
		},
		GasLimits: []uint64{100000, 400000},
		Values:    []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(2)},
		Datas:     [][]byte{nil, {0xca, 0xfe}},
	}
}

func TestTemplateInstantiate(t *testing.T) {
	tmpl := testTemplate()
	tx, err := tmpl.Instantiate(Indexes{Gas: 1, Value: 2, Data: 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(400000), tx.GasLimit)
	assert.Equal(t, big.NewInt(2), tx.Value)
	assert.Nil(t, tx.Data)

	tx, err = tmpl.Instantiate(Indexes{Gas: 0, Value: 0, Data: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, tx.Data)
}

func TestTemplateInstantiateBadIndex(t *testing.T) {
	tmpl := testTemplate()
	for _, idx := range []Indexes{
		{Gas: 2}, {Gas: -1}, {Value: 3}, {Value: -1}, {Data: 2}, {Data: -1},
	} {
		_, err := tmpl.Instantiate(idx)
		require.ErrorIs(t, err, ErrBadIndex, "%+v", idx)
	}
}

func TestTemplateAccessListByDataIndex(t *testing.T) {
	tmpl := testTemplate()
	tmpl.Tx.GasPrice = nil
	tmpl.Tx.MaxPriorityFeePerGas = big.NewInt(1)
	tmpl.Tx.MaxFeePerGas = big.NewInt(100)
	tmpl.AccessLists = []types.AccessList{
		nil,
		{{Address: testTo, StorageKeys: []common.Hash{common.BigToHash(common.Big1)}}},
	}
	tx, err := tmpl.Instantiate(Indexes{Data: 1})
	require.NoError(t, err)
	require.Len(t, tx.AccessList, 1)
	assert.Equal(t, testTo, tx.AccessList[0].Address)
}

func TestTemplateUnmarshal(t *testing.T) {
	src := `{
		"sender": "0xa94f5374fce5edbc8e2a8697c15331677e6ebf0b",
		"secretKey": "0x45a915e4d060149eb4365960e6a7a45f334393093061116b197e3240065ff2d8",
		"to": "0x095e7baea6a6c7c4c2dfeb977efac326af552d87",
		"nonce": "0x00",
		"gasPrice": "0x0a",
		"gasLimit": ["0x061a80", "0x0186a0"],
		"value": ["0x00", "0x0186a0"],
		"data": ["0x", "0x6001"]
	}`
	tmpl := new(Template)
	require.NoError(t, json.Unmarshal([]byte(src), tmpl))
	assert.Equal(t, testSender, tmpl.Tx.Sender)
	assert.Equal(t, []uint64{400000, 100000}, tmpl.GasLimits)
	require.Len(t, tmpl.Values, 2)
	assert.Equal(t, big.NewInt(100000), tmpl.Values[1])
	require.Len(t, tmpl.Datas, 2)
	assert.Empty(t, tmpl.Datas[0])
	assert.Equal(t, []byte{0x60, 0x01}, tmpl.Datas[1])
	assert.Equal(t, big.NewInt(10), tmpl.Tx.GasPrice)
}

func TestTemplateUnmarshalMissingSender(t *testing.T) {
	tmpl := new(Template)
	err := json.Unmarshal([]byte(`{"gasPrice":"0x0a","gasLimit":[],"value":[],"data":[]}`), tmpl)
	require.Error(t, err)
}
