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

	"github.com/DavePearce/EvmTools/hexutil"
)

// TraceTest is the output document of the converter: the original pre-state
// and environment, plus the captured execution traces for every concrete
// instance, arranged by fork.
type TraceTest struct {
	Name  string
	Pre   WorldState
	Env   Environment
	Forks map[string][]TraceInstance
}

// TraceInstance pairs one executed transaction with its identifier.
type TraceInstance struct {
	ID string
	Tx TraceTx
}

// TraceTx couples a concrete transaction with its classified outcome, return
// payload and captured trace.
type TraceTx struct {
	Transaction *Transaction
	Outcome     Outcome
	Data        []byte
	Trace       *Trace
}

type traceTestJSON struct {
	Pre   WorldState                   `json:"pre"`
	Env   Environment                  `json:"env"`
	Tests map[string][]json.RawMessage `json:"tests"`
}

type traceInstanceJSON struct {
	ID string      `json:"id"`
	Tx traceTxJSON `json:"tx"`
}

type traceTxJSON struct {
	Transaction *Transaction    `json:"transaction"`
	Outcome     Outcome         `json:"outcome"`
	Data        string          `json:"data"`
	Trace       json.RawMessage `json:"trace"`
}

// EncodeJSON serialises the document. Memory, storage and payload dumps are
// abbreviated with the given minimum run length (non-positive disables).
func (tt *TraceTest) EncodeJSON(minRun int) ([]byte, error) {
	out := traceTestJSON{
		Pre:   tt.Pre,
		Env:   tt.Env,
		Tests: make(map[string][]json.RawMessage, len(tt.Forks)),
	}
	for fork, instances := range tt.Forks {
		encoded := make([]json.RawMessage, 0, len(instances))
		for _, inst := range instances {
			trace, err := inst.Tx.Trace.EncodeJSON(minRun)
			if err != nil {
				return nil, fmt.Errorf("instance %s: %w", inst.ID, err)
			}
			raw, err := json.Marshal(&traceInstanceJSON{
				ID: inst.ID,
				Tx: traceTxJSON{
					Transaction: inst.Tx.Transaction,
					Outcome:     inst.Tx.Outcome,
					Data:        hexutil.EncodeAbbrev(inst.Tx.Data, minRun),
					Trace:       trace,
				},
			})
			if err != nil {
				return nil, fmt.Errorf("instance %s: %w", inst.ID, err)
			}
			encoded = append(encoded, raw)
		}
		out.Tests[fork] = encoded
	}
	return json.Marshal(&out)
}

// MarshalJSON implements json.Marshaler with default abbreviation.
func (tt *TraceTest) MarshalJSON() ([]byte, error) {
	return tt.EncodeJSON(hexutil.DefaultAbbrevRun)
}

// UnmarshalJSON implements json.Unmarshaler. The document name is not part
// of the document itself and must be assigned by the caller.
func (tt *TraceTest) UnmarshalJSON(input []byte) error {
	var dec traceTestJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	tt.Pre = dec.Pre
	tt.Env = dec.Env
	tt.Forks = make(map[string][]TraceInstance, len(dec.Tests))
	for fork, raws := range dec.Tests {
		instances := make([]TraceInstance, 0, len(raws))
		for _, raw := range raws {
			var inst traceInstanceJSON
			if err := json.Unmarshal(raw, &inst); err != nil {
				return err
			}
			var data []byte
			if inst.Tx.Data != "" {
				var err error
				if data, err = hexutil.DecodeAbbrev(inst.Tx.Data); err != nil {
					return fmt.Errorf("instance %s: %w", inst.ID, err)
				}
			}
			if len(data) == 0 {
				data = nil
			}
			trace := new(Trace)
			if err := json.Unmarshal(inst.Tx.Trace, trace); err != nil {
				return fmt.Errorf("instance %s: %w", inst.ID, err)
			}
			instances = append(instances, TraceInstance{
				ID: inst.ID,
				Tx: TraceTx{
					Transaction: inst.Tx.Transaction,
					Outcome:     inst.Tx.Outcome,
					Data:        data,
					Trace:       trace,
				},
			})
		}
		tt.Forks[fork] = instances
	}
	return nil
}
