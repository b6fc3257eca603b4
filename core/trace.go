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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/DavePearce/EvmTools/hexutil"
)

// Trace records the execution of a single call frame: an ordered sequence of
// steps (interleaved with nested sub-call traces) followed by the outcome of
// the frame. Data holds the return (or revert) payload and is nil for every
// other outcome.
type Trace struct {
	Steps   []Element
	Outcome Outcome
	Data    []byte
}

// Element is one entry of a trace. It has exactly two implementations: Step
// for a single instruction, and SubTrace for a nested contract call.
type Element interface {
	traceElement()
}

// Step captures the machine state immediately before one instruction is
// executed. The stack snapshot may be truncated to the topmost items, in
// which case StackSize still reports the true stack depth. Memory is only
// populated once something has been written to it, and Storage holds the
// storage slots read or written so far in this contract.
type Step struct {
	PC        uint64
	Op        byte
	Depth     int
	Gas       uint64
	StackSize int
	Stack     []uint256.Int
	Memory    []byte
	Storage   map[common.Hash]common.Hash
}

func (s *Step) traceElement() {}

// SubTrace wraps the trace of a nested contract call.
type SubTrace struct {
	Trace *Trace
}

func (s *SubTrace) traceElement() {}

type stepJSON struct {
	PC        uint64            `json:"pc"`
	Op        byte              `json:"op"`
	Depth     int               `json:"depth"`
	Gas       quantityJSON      `json:"gas"`
	StackSize int               `json:"stackSize"`
	Stack     []string          `json:"stack"`
	Memory    string            `json:"memory,omitempty"`
	Storage   map[string]string `json:"storage,omitempty"`
}

type traceJSON struct {
	Steps   []json.RawMessage `json:"steps"`
	Outcome Outcome           `json:"outcome"`
	Data    string            `json:"data"`
}

// quantityJSON accepts both hex strings and plain JSON numbers, since the
// wrapped tool has emitted either across versions. It always marshals as a
// hex quantity.
type quantityJSON uint64

func (q quantityJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.EncodeUint64(uint64(q)))
}

func (q *quantityJSON) UnmarshalJSON(input []byte) error {
	if len(input) > 0 && input[0] == '"' {
		var s string
		if err := json.Unmarshal(input, &s); err != nil {
			return err
		}
		n, err := hexutil.DecodeBig(s)
		if err != nil {
			return err
		}
		if !n.IsUint64() {
			return fmt.Errorf("quantity %q overflows uint64", s)
		}
		*q = quantityJSON(n.Uint64())
		return nil
	}
	var n uint64
	if err := json.Unmarshal(input, &n); err != nil {
		return err
	}
	*q = quantityJSON(n)
	return nil
}

// MarshalJSON implements json.Marshaler using abbreviated hex for memory and
// return data. Use EncodeJSON to control abbreviation.
func (t *Trace) MarshalJSON() ([]byte, error) {
	return t.EncodeJSON(hexutil.DefaultAbbrevRun)
}

// EncodeJSON serialises the trace, abbreviating memory and data dumps with
// the given minimum run length. A minRun below one disables abbreviation.
func (t *Trace) EncodeJSON(minRun int) ([]byte, error) {
	out := traceJSON{
		Steps:   make([]json.RawMessage, 0, len(t.Steps)),
		Outcome: t.Outcome,
		Data:    hexutil.EncodeAbbrev(t.Data, minRun),
	}
	for _, elem := range t.Steps {
		var (
			raw []byte
			err error
		)
		switch e := elem.(type) {
		case *Step:
			raw, err = json.Marshal(e.encode(minRun))
		case *SubTrace:
			raw, err = e.Trace.EncodeJSON(minRun)
		default:
			err = fmt.Errorf("unknown trace element %T", elem)
		}
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, raw)
	}
	return json.Marshal(&out)
}

// UnmarshalJSON implements json.Unmarshaler, accepting both abbreviated and
// plain hex forms.
func (t *Trace) UnmarshalJSON(input []byte) error {
	var dec traceJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	var data []byte
	if dec.Data != "" {
		var err error
		if data, err = hexutil.DecodeAbbrev(dec.Data); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		data = nil
	}
	t.Steps = nil
	t.Outcome = dec.Outcome
	t.Data = data
	for _, raw := range dec.Steps {
		elem, err := decodeElement(raw)
		if err != nil {
			return err
		}
		t.Steps = append(t.Steps, elem)
	}
	return nil
}

// decodeElement distinguishes steps from nested traces: a step always has a
// program counter, a sub-trace always has a steps array.
func decodeElement(raw json.RawMessage) (Element, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if _, ok := probe["pc"]; ok {
		var dec stepJSON
		if err := json.Unmarshal(raw, &dec); err != nil {
			return nil, err
		}
		return dec.decode()
	}
	if _, ok := probe["steps"]; ok {
		sub := new(Trace)
		if err := json.Unmarshal(raw, sub); err != nil {
			return nil, err
		}
		return &SubTrace{Trace: sub}, nil
	}
	return nil, fmt.Errorf("unknown trace record: %s", raw)
}

func (s *Step) encode(minRun int) *stepJSON {
	out := &stepJSON{
		PC:        s.PC,
		Op:        s.Op,
		Depth:     s.Depth,
		Gas:       quantityJSON(s.Gas),
		StackSize: s.StackSize,
		Stack:     make([]string, len(s.Stack)),
	}
	for i := range s.Stack {
		out.Stack[i] = hexutil.EncodeBig(s.Stack[i].ToBig())
	}
	if len(s.Memory) > 0 {
		out.Memory = hexutil.EncodeAbbrev(s.Memory, minRun)
	}
	if len(s.Storage) > 0 {
		out.Storage = make(map[string]string, len(s.Storage))
		for key, value := range s.Storage {
			out.Storage[hexutil.Encode(key[:])] = hexutil.Encode(value[:])
		}
	}
	return out
}

func (dec *stepJSON) decode() (*Step, error) {
	step := &Step{
		PC:        dec.PC,
		Op:        dec.Op,
		Depth:     dec.Depth,
		Gas:       uint64(dec.Gas),
		StackSize: dec.StackSize,
	}
	if len(dec.Stack) > 0 {
		step.Stack = make([]uint256.Int, len(dec.Stack))
	}
	for i, item := range dec.Stack {
		n, err := hexutil.DecodeBig(item)
		if err != nil {
			return nil, fmt.Errorf("stack item %q: %w", item, err)
		}
		if overflow := step.Stack[i].SetFromBig(n); overflow {
			return nil, fmt.Errorf("stack item %q overflows 256 bits", item)
		}
	}
	if dec.Memory != "" {
		mem, err := hexutil.DecodeAbbrev(dec.Memory)
		if err != nil {
			return nil, fmt.Errorf("memory: %w", err)
		}
		step.Memory = mem
	}
	if len(dec.Storage) > 0 {
		step.Storage = make(map[common.Hash]common.Hash, len(dec.Storage))
		for key, value := range dec.Storage {
			k, err := hexutil.DecodeBig(key)
			if err != nil {
				return nil, fmt.Errorf("storage key %q: %w", key, err)
			}
			v, err := hexutil.DecodeBig(value)
			if err != nil {
				return nil, fmt.Errorf("storage value %q: %w", value, err)
			}
			step.Storage[common.BigToHash(k)] = common.BigToHash(v)
		}
	}
	return step, nil
}
