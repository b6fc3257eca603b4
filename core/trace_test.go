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
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() *Trace {
	inner := &Trace{
		Steps: []Element{
			&Step{PC: 0, Op: 0x60, Depth: 2, Gas: 100, StackSize: 0},
			&Step{PC: 2, Op: 0xf3, Depth: 2, Gas: 97, StackSize: 2,
				Stack:  []uint256.Int{*uint256.NewInt(4), *uint256.NewInt(0)},
				Memory: []byte{0xde, 0xad, 0xbe, 0xef},
			},
		},
		Outcome: Return,
		Data:    []byte{0xde, 0xad, 0xbe, 0xef},
	}
	return &Trace{
		Steps: []Element{
			&Step{PC: 0, Op: 0xf1, Depth: 1, Gas: 1000, StackSize: 7,
				Stack: []uint256.Int{*uint256.NewInt(0xdead), *uint256.NewInt(0x100)},
				Storage: map[common.Hash]common.Hash{
					common.BigToHash(common.Big1): common.BigToHash(common.Big32),
				},
			},
			&SubTrace{Trace: inner},
			&Step{PC: 1, Op: 0x00, Depth: 1, Gas: 900, StackSize: 1,
				Stack: []uint256.Int{*uint256.NewInt(1)},
			},
		},
		Outcome: Return,
	}
}

func TestTraceRoundTrip(t *testing.T) {
	trace := sampleTrace()
	raw, err := json.Marshal(trace)
	require.NoError(t, err)
	back := new(Trace)
	require.NoError(t, json.Unmarshal(raw, back))
	assert.Equal(t, trace, back)
}

func TestTraceRoundTripUnabbreviated(t *testing.T) {
	trace := sampleTrace()
	raw, err := trace.EncodeJSON(0)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "~")
	back := new(Trace)
	require.NoError(t, json.Unmarshal(raw, back))
	assert.Equal(t, trace, back)
}

func TestTraceMemoryAbbreviated(t *testing.T) {
	trace := &Trace{
		Steps: []Element{
			&Step{PC: 0, Op: 0x00, Depth: 1, StackSize: 0, Memory: make([]byte, 64)},
		},
		Outcome: Return,
	}
	raw, err := trace.EncodeJSON(16)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"memory":"0x00~3f~"`)
	back := new(Trace)
	require.NoError(t, json.Unmarshal(raw, back))
	step := back.Steps[0].(*Step)
	assert.Equal(t, make([]byte, 64), step.Memory)
}

func TestTraceErrorOutcome(t *testing.T) {
	trace := &Trace{Outcome: OutOfGas}
	raw, err := json.Marshal(trace)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"outcome":"OUT_OF_GAS"`)
	back := new(Trace)
	require.NoError(t, json.Unmarshal(raw, back))
	assert.Equal(t, OutOfGas, back.Outcome)
	assert.Nil(t, back.Data)
}

// Gas written by hand as a plain number must still parse.
func TestStepGasAsNumber(t *testing.T) {
	raw := `{"steps":[{"pc":0,"op":0,"depth":1,"gas":21000,"stackSize":0,"stack":[]}],"outcome":"RETURN","data":"0x"}`
	trace := new(Trace)
	require.NoError(t, json.Unmarshal([]byte(raw), trace))
	assert.Equal(t, uint64(21000), trace.Steps[0].(*Step).Gas)
}

func TestDecodeElementUnknown(t *testing.T) {
	trace := new(Trace)
	err := json.Unmarshal([]byte(`{"steps":[{"bogus":1}],"outcome":"RETURN","data":"0x"}`), trace)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown trace record"))
}
