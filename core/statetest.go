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
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StateTest is one entry of a state test fixture file: a pre-state, a block
// environment and a transaction template, together with the per-fork
// instances it should be run as. A fixture file maps test names to these.
type StateTest struct {
	Name string
	Env  Environment
	Pre  WorldState
	Tx   Template
	Post map[string][]Instance
}

// Instance identifies one concrete run of a state test: a fork plus the
// parameter indexes to instantiate the transaction template with. The
// remaining fields mirror the fixture's expected post-state and are carried
// along but not interpreted by the converter (the expectations recorded in
// fixtures are frequently stale; the captured trace is the ground truth).
type Instance struct {
	Fork            string                `json:"-"`
	Indexes         Indexes               `json:"indexes"`
	ExpectException string                `json:"expectException,omitempty"`
	Root            common.UnprefixedHash `json:"hash,omitempty"`
	Logs            common.UnprefixedHash `json:"logs,omitempty"`
	TxBytes         hexutil.Bytes         `json:"txbytes,omitempty"`
}

// ID returns the canonical instance identifier, e.g. "Berlin_0_1_0" for
// gas index 0, data index 1, value index 0.
func (inst *Instance) ID() string {
	return fmt.Sprintf("%s_%d_%d_%d", inst.Fork, inst.Indexes.Gas, inst.Indexes.Data, inst.Indexes.Value)
}

type stateTestJSON struct {
	Env  Environment           `json:"env"`
	Pre  WorldState            `json:"pre"`
	Tx   Template              `json:"transaction"`
	Post map[string][]Instance `json:"post"`
}

// ParseStateTests parses a state test fixture file, returning the tests
// sorted by name.
func ParseStateTests(src []byte) ([]*StateTest, error) {
	var file map[string]stateTestJSON
	if err := json.Unmarshal(src, &file); err != nil {
		return nil, err
	}
	tests := make([]*StateTest, 0, len(file))
	for name, dec := range file {
		st := &StateTest{
			Name: name,
			Env:  dec.Env,
			Pre:  dec.Pre,
			Tx:   dec.Tx,
			Post: dec.Post,
		}
		for fork, instances := range st.Post {
			for i := range instances {
				instances[i].Fork = fork
			}
		}
		tests = append(tests, st)
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].Name < tests[j].Name })
	return tests, nil
}

// Forks returns the forks this test defines instances for, sorted.
func (st *StateTest) Forks() []string {
	forks := make([]string, 0, len(st.Post))
	for fork := range st.Post {
		forks = append(forks, fork)
	}
	sort.Strings(forks)
	return forks
}
