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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// Environment holds the block context parameters of a state test. The JSON
// field names match both the fixture format and the environment input of the
// external tool, so the same encoding serves for reading fixtures and for
// writing tool inputs.
type Environment struct {
	Coinbase      common.Address                      `json:"currentCoinbase"`
	Difficulty    *math.HexOrDecimal256               `json:"currentDifficulty,omitempty"`
	Random        *math.HexOrDecimal256               `json:"currentRandom,omitempty"`
	GasLimit      math.HexOrDecimal64                 `json:"currentGasLimit"`
	Number        math.HexOrDecimal64                 `json:"currentNumber"`
	Timestamp     math.HexOrDecimal64                 `json:"currentTimestamp"`
	BaseFee       *math.HexOrDecimal256               `json:"currentBaseFee,omitempty"`
	ExcessBlobGas *math.HexOrDecimal64                `json:"currentExcessBlobGas,omitempty"`
	PreviousHash  *common.Hash                        `json:"previousHash,omitempty"`
	BlockHashes   map[math.HexOrDecimal64]common.Hash `json:"blockHashes,omitempty"`
}

// BaseFeeBig returns the base fee as a big integer, or nil when the fork has
// none.
func (env *Environment) BaseFeeBig() *big.Int {
	if env.BaseFee == nil {
		return nil
	}
	return (*big.Int)(env.BaseFee)
}
