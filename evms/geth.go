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

package evms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DavePearce/EvmTools/core"
)

// Defaults for the geth adapter.
const (
	DefaultCmd        = "evm"
	DefaultTimeout    = 10 * time.Second
	DefaultStackLimit = 10
)

var (
	// ErrEmptyTraceOutput indicates the tool produced no trace file for the
	// transaction.
	ErrEmptyTraceOutput = errors.New("no trace output produced")
	// ErrMultipleTraceFiles indicates the tool produced more than one trace
	// file where exactly one was expected.
	ErrMultipleTraceFiles = errors.New("multiple trace files produced")
)

// Geth drives the go-ethereum "evm" binary in transition (t8n) mode to
// execute a single transaction and capture its instruction trace.
type Geth struct {
	// Cmd is the binary to invoke, resolved via PATH when not absolute.
	Cmd string
	// Timeout bounds a single transition run.
	Timeout time.Duration
	// StackLimit truncates captured stack snapshots to the topmost items
	// (non-positive keeps everything).
	StackLimit int
}

// NewGeth returns an adapter with default settings.
func NewGeth() *Geth {
	return &Geth{Cmd: DefaultCmd, Timeout: DefaultTimeout, StackLimit: DefaultStackLimit}
}

// Version reports the tool's version string, confirming the binary exists
// and runs.
func (g *Geth) Version(ctx context.Context) (string, error) {
	out, _, err := runCmd(ctx, g.Timeout, g.Cmd, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// t8nResult is the slice of the tool's result file we interpret: the
// transactions it refused to execute, with the reason.
type t8nResult struct {
	Rejected []struct {
		Index int    `json:"index"`
		Error string `json:"error"`
	} `json:"rejected"`
}

// T8n executes a single transaction against the given pre-state and block
// environment on the named fork, returning the reconstructed trace. A
// transaction the tool rejects outright yields an empty trace carrying the
// rejection outcome.
func (g *Geth) T8n(ctx context.Context, fork string, env *core.Environment, pre core.WorldState, tx *core.Transaction) (*core.Trace, error) {
	dir, err := os.MkdirTemp("", "evmtool-t8n-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := writeInputs(dir, env, pre, tx); err != nil {
		return nil, err
	}
	args := []string{
		"t8n",
		"--state.fork", fork,
		"--trace",
		"--trace.memory",
		"--input.env", filepath.Join(dir, "env.json"),
		"--input.alloc", filepath.Join(dir, "alloc.json"),
		"--input.txs", filepath.Join(dir, "txs.json"),
		"--output.basedir", dir,
		"--output.result", "result.json",
		"--output.alloc", "alloc-out.json",
	}
	if _, _, err := runCmd(ctx, g.Timeout, g.Cmd, args...); err != nil {
		return nil, err
	}
	// A rejected transaction never reaches the interpreter, so there is no
	// trace to read; the rejection reason is the outcome.
	result, err := readResult(filepath.Join(dir, "result.json"))
	if err != nil {
		return nil, err
	}
	if len(result.Rejected) > 0 {
		outcome, err := classifyRejection(result.Rejected[0].Error)
		if err != nil {
			return nil, err
		}
		return &core.Trace{Outcome: outcome}, nil
	}
	tracefile, err := findTraceFile(dir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(tracefile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTrace(f, g.StackLimit)
}

// writeInputs materialises the three t8n input files. The transaction is
// wrapped in a one-element array and given empty signature fields; the tool
// signs it from the embedded secret key.
func writeInputs(dir string, env *core.Environment, pre core.WorldState, tx *core.Transaction) error {
	if err := writeJSON(filepath.Join(dir, "env.json"), env); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "alloc.json"), pre); err != nil {
		return err
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	empty := json.RawMessage(`""`)
	fields["v"], fields["r"], fields["s"] = empty, empty, empty
	return writeJSON(filepath.Join(dir, "txs.json"), []map[string]json.RawMessage{fields})
}

func writeJSON(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func readResult(path string) (*t8nResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	result := new(t8nResult)
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("malformed result file: %w", err)
	}
	return result, nil
}

// findTraceFile locates the single trace file the tool wrote into the
// output directory. The name embeds the transaction hash and is not
// predictable up front.
func findTraceFile(dir string) (string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", ErrEmptyTraceOutput
	case 1:
		return matches[0], nil
	default:
		return "", ErrMultipleTraceFiles
	}
}

// classifyRejection maps the tool's transaction rejection reasons onto the
// outcome taxonomy. The tool wraps every reason in a "could not apply tx ..."
// prefix, so entries match as substrings. Like step errors, the table is
// closed: a wrapped reason it does not name is a hard error.
func classifyRejection(text string) (core.Outcome, error) {
	prefixes := []struct {
		text    string
		outcome core.Outcome
	}{
		{"intrinsic gas too low", core.IntrinsicGas},
		{"insufficient funds", core.InsufficientFunds},
		{"nonce has max value", core.NonceMaxValue},
		{"transaction type not supported", core.TypeNotSupported},
		{"contract address collision", core.AccountCollision},
		{"sender not an eoa", core.SenderNotEOA},
		{"max fee per gas less than block base fee", core.FeeCapLessThanBlocks},
		{"gas limit reached", core.GasLimitReached},
	}
	lower := strings.ToLower(text)
	for _, entry := range prefixes {
		if strings.Contains(lower, entry.text) {
			return entry.outcome, nil
		}
	}
	return 0, &UnknownOutcomeError{Text: text}
}
