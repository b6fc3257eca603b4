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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/DavePearce/EvmTools/core"
	"github.com/DavePearce/EvmTools/hexutil"
)

// UnknownOutcomeError indicates the external tool reported an error string
// outside the known classification table. Classification never falls back to
// a guess; a new tool wording has to be added to the table first.
type UnknownOutcomeError struct {
	Text string
}

func (e *UnknownOutcomeError) Error() string {
	return fmt.Sprintf("unrecognised error text %q", e.Text)
}

// UnexpectedEndOfTraceError indicates the step stream ended (or stepped back
// to an enclosing call) on an instruction which cannot terminate a call
// frame.
type UnexpectedEndOfTraceError struct {
	Op byte
}

func (e *UnexpectedEndOfTraceError) Error() string {
	return fmt.Sprintf("unexpected end of trace at %v", vm.OpCode(e.Op))
}

// traceRecord is one line of the external tool's trace output: either a step
// record (has a program counter) or the final output record (has an output
// field, no program counter).
type traceRecord struct {
	PC      *uint64                     `json:"pc"`
	Op      byte                        `json:"op"`
	Depth   int                         `json:"depth"`
	Gas     quantity                    `json:"gas"`
	Stack   []string                    `json:"stack"`
	Memory  *string                     `json:"memory"`
	Storage map[common.Hash]common.Hash `json:"storage"`
	Output  *string                     `json:"output"`
	Err     string                      `json:"error"`
}

func (r *traceRecord) isStep() bool { return r.PC != nil }

// quantity decodes either a hex string or a plain JSON number; the tool has
// emitted both across versions.
type quantity uint64

func (q *quantity) UnmarshalJSON(input []byte) error {
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
		*q = quantity(n.Uint64())
		return nil
	}
	var n uint64
	if err := json.Unmarshal(input, &n); err != nil {
		return err
	}
	*q = quantity(n)
	return nil
}

// output decodes the final record's output payload, which may be empty or
// unprefixed hex.
func (r *traceRecord) output() ([]byte, error) {
	if r.Output == nil || *r.Output == "" || *r.Output == "0x" {
		return nil, nil
	}
	return hexutil.Decode(*r.Output)
}

// cursor provides one-record lookahead over the parsed trace stream. The
// whole stream is read up front; traces are bounded by the tool's own step
// limit, and lookahead over a slice beats re-reading the file.
type cursor struct {
	records []*traceRecord
	pos     int
}

// maxTraceLine bounds one line of trace output. Memory dumps make these
// lines large; 64MB covers every trace seen in the reference tests.
const maxTraceLine = 64 * 1024 * 1024

// newCursor parses a line-oriented JSON trace stream. Step records carrying
// a bare "execution reverted" error are dropped here: the tool emits them
// inconsistently across forks as a synthetic marker, and they must not
// surface as execution steps.
func newCursor(r io.Reader) (*cursor, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxTraceLine)
	var records []*traceRecord
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		record := new(traceRecord)
		if err := json.Unmarshal([]byte(line), record); err != nil {
			return nil, fmt.Errorf("malformed trace record %q: %w", line, err)
		}
		if record.isStep() && record.Err == "execution reverted" {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &cursor{records: records}, nil
}

func (c *cursor) peek() (*traceRecord, bool) {
	if c.pos >= len(c.records) {
		return nil, false
	}
	return c.records[c.pos], true
}

func (c *cursor) advance() { c.pos++ }

// classifyError maps the tool's step-level error text onto the outcome
// taxonomy. The table is closed: unknown text is a hard error.
func classifyError(text string) (core.Outcome, error) {
	prefixes := []struct {
		text    string
		outcome core.Outcome
	}{
		{"execution reverted", core.Revert},
		{"gas uint64 overflow", core.OutOfGas},
		{"contract creation code storage out of gas", core.CreationOutOfGas},
		{"out of gas", core.OutOfGas},
		{"invalid jump destination", core.InvalidJumpdest},
		{"return data out of bounds", core.ReturndataOverflow},
		{"returndata overflow", core.ReturndataOverflow},
		{"call depth exceeded", core.CalldepthExceeded},
		{"write protection", core.WriteProtection},
		{"max code size exceeded", core.CodesizeExceeded},
		{"must not begin with 0xef", core.InvalidEOF},
		{"stack underflow", core.StackUnderflow},
		{"stack limit reached", core.StackOverflow},
		{"invalid opcode", core.InvalidOpcode},
	}
	for _, entry := range prefixes {
		if strings.HasPrefix(text, entry.text) {
			return entry.outcome, nil
		}
	}
	return 0, &UnknownOutcomeError{Text: text}
}

// postError reports whether the outcome is a "post-error": one whose
// triggering instruction is still recorded in the trace before termination.
func postError(outcome core.Outcome) bool {
	switch outcome {
	case core.InvalidJumpdest, core.WriteProtection, core.ReturndataOverflow, core.InvalidOpcode:
		return true
	}
	return false
}

// traceBuilder reconstructs the nested call tree from the flat depth-tagged
// record stream.
type traceBuilder struct {
	cursor     *cursor
	stackLimit int
}

// buildTrace reconstructs one call frame at the given depth (the tool
// reports depth 1-based). It consumes records at exactly this depth, recurses
// for deeper ones, and stops without consuming when the stream steps back to
// an enclosing frame.
func (tb *traceBuilder) buildTrace(depth int) (*core.Trace, error) {
	var elements []core.Element
	for {
		record, ok := tb.cursor.peek()
		if !ok {
			// Stream ended without a final record; infer the frame's
			// outcome from its last instruction.
			return tb.inferredReturn(elements)
		}
		if !record.isStep() {
			tb.cursor.advance()
			return tb.finalTrace(elements, record)
		}
		switch {
		case record.Depth < depth:
			// Back in the enclosing call. Leave the record for the
			// caller and infer how this frame returned.
			return tb.inferredReturn(elements)
		case record.Depth > depth:
			sub, err := tb.buildTrace(depth + 1)
			if err != nil {
				return nil, err
			}
			elements = append(elements, &core.SubTrace{Trace: sub})
		case record.Err != "":
			outcome, err := classifyError(record.Err)
			if err != nil {
				return nil, err
			}
			if postError(outcome) {
				// The faulting instruction still counts as executed.
				step, err := tb.step(record)
				if err != nil {
					return nil, err
				}
				elements = append(elements, step)
			}
			tb.cursor.advance()
			data, err := record.output()
			if err != nil {
				return nil, err
			}
			if outcome != core.Return && outcome != core.Revert {
				data = nil
			}
			return &core.Trace{Steps: elements, Outcome: outcome, Data: data}, nil
		default:
			step, err := tb.step(record)
			if err != nil {
				return nil, err
			}
			elements = append(elements, step)
			tb.cursor.advance()
		}
	}
}

// finalTrace terminates the root frame with the tool's final output record.
func (tb *traceBuilder) finalTrace(elements []core.Element, record *traceRecord) (*core.Trace, error) {
	output, err := record.output()
	if err != nil {
		return nil, err
	}
	if record.Err != "" {
		outcome, err := classifyError(record.Err)
		if err != nil {
			return nil, err
		}
		// The final payload is only meaningful for reverts; geth reports
		// the gas-refund remainder here otherwise.
		if outcome != core.Revert {
			output = nil
		}
		return &core.Trace{Steps: elements, Outcome: outcome, Data: output}, nil
	}
	return &core.Trace{Steps: elements, Outcome: core.Return, Data: output}, nil
}

// inferredReturn determines how a frame terminated when the tool reports no
// output record for it, by inspecting the frame's last executed instruction.
func (tb *traceBuilder) inferredReturn(elements []core.Element) (*core.Trace, error) {
	if len(elements) == 0 {
		return nil, &UnexpectedEndOfTraceError{}
	}
	last, ok := elements[len(elements)-1].(*core.Step)
	if !ok {
		return nil, &UnexpectedEndOfTraceError{}
	}
	switch vm.OpCode(last.Op) {
	case vm.STOP, vm.SELFDESTRUCT:
		return &core.Trace{Steps: elements, Outcome: core.Return}, nil
	case vm.RETURN:
		return &core.Trace{Steps: elements, Outcome: core.Return, Data: returnData(last)}, nil
	case vm.REVERT:
		return &core.Trace{Steps: elements, Outcome: core.Revert, Data: returnData(last)}, nil
	default:
		return nil, &UnexpectedEndOfTraceError{Op: last.Op}
	}
}

// returnData reads the payload of a RETURN/REVERT from the instruction's
// operands: top of stack is the memory offset, the next item the length.
// Reads beyond the captured memory are zero padded. Operands beyond machine
// range, or lengths above the trace line cap, yield an empty payload; the
// interpreter faults on those before any memory is materialised.
func returnData(step *core.Step) []byte {
	if len(step.Stack) < 2 {
		return nil
	}
	var (
		offset = step.Stack[len(step.Stack)-1]
		length = step.Stack[len(step.Stack)-2]
	)
	if !offset.IsUint64() || !length.IsUint64() || length.Uint64() == 0 {
		return nil
	}
	var (
		off = offset.Uint64()
		n   = length.Uint64()
	)
	if n > maxTraceLine {
		return nil
	}
	out := make([]byte, n)
	if off < uint64(len(step.Memory)) {
		copy(out, step.Memory[off:])
	}
	return out
}

// step converts a step record into a trace step, truncating the stack
// snapshot to the configured number of topmost items.
func (tb *traceBuilder) step(record *traceRecord) (*core.Step, error) {
	stack := record.Stack
	size := len(stack)
	if tb.stackLimit > 0 && size > tb.stackLimit {
		stack = stack[size-tb.stackLimit:]
	}
	step := &core.Step{
		PC:        *record.PC,
		Op:        record.Op,
		Depth:     record.Depth,
		Gas:       uint64(record.Gas),
		StackSize: size,
		Stack:     make([]uint256.Int, len(stack)),
		Storage:   record.Storage,
	}
	for i, item := range stack {
		n, err := hexutil.DecodeBig(item)
		if err != nil {
			return nil, fmt.Errorf("stack item %q: %w", item, err)
		}
		if overflow := step.Stack[i].SetFromBig(n); overflow {
			return nil, fmt.Errorf("stack item %q overflows 256 bits", item)
		}
	}
	if record.Memory != nil {
		mem, err := hexutil.Decode(*record.Memory)
		if err != nil {
			return nil, fmt.Errorf("memory: %w", err)
		}
		if len(mem) > 0 {
			step.Memory = mem
		}
	}
	return step, nil
}

// ReadTrace reconstructs a complete trace from a line-oriented JSON trace
// stream, truncating captured stacks to stackLimit items (non-positive keeps
// everything).
func ReadTrace(r io.Reader, stackLimit int) (*core.Trace, error) {
	cursor, err := newCursor(r)
	if err != nil {
		return nil, err
	}
	tb := &traceBuilder{cursor: cursor, stackLimit: stackLimit}
	trace, err := tb.buildTrace(1)
	if err != nil {
		return nil, err
	}
	// When the root frame faults mid-stream the tool still emits its final
	// summary record afterwards; skip it.
	if record, ok := cursor.peek(); ok && !record.isStep() {
		cursor.advance()
	}
	if record, ok := cursor.peek(); ok {
		return nil, fmt.Errorf("trailing trace records at depth %d", record.Depth)
	}
	return trace, nil
}
