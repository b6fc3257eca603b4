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

import "fmt"

// Outcome describes how the execution of a transaction (or a nested contract
// call) terminated. At a high level there are two scenarios: the execution
// ran and either succeeded or faulted, or the transaction was rejected before
// execution even began (insufficient funds, bad gas limit, etc).
//
// The set is deliberately closed: error text reported by the external tool
// which cannot be mapped onto one of these values is a hard failure, never
// silently classified as Unknown.
type Outcome int

const (
	// Return indicates execution completed normally.
	Return Outcome = iota
	// Revert indicates execution reverted, either via the REVERT
	// instruction or an "execution reverted" report.
	Revert
	// Unknown is reserved for traces parsed from documents written by
	// older tool versions. The converter itself never produces it.
	Unknown
	// IntrinsicGas indicates the gas limit did not cover the intrinsic
	// cost of the transaction.
	IntrinsicGas
	// OutOfGas indicates execution ran out of gas.
	OutOfGas
	// CreationOutOfGas indicates insufficient gas to store the contract
	// code after the initcode returned.
	CreationOutOfGas
	// TypeNotSupported indicates the transaction type is not available on
	// the selected fork.
	TypeNotSupported
	// NonceMaxValue indicates the sender nonce cannot be incremented.
	NonceMaxValue
	// SenderNotEOA indicates the sending account has code.
	SenderNotEOA
	// FeeCapLessThanBlocks indicates the fee cap is below the block base fee.
	FeeCapLessThanBlocks
	// InsufficientFunds indicates the sender cannot cover the up-front cost.
	InsufficientFunds
	// CodesizeExceeded indicates the deployed code exceeds the size limit.
	CodesizeExceeded
	// InvalidOpcode indicates an undefined instruction was executed.
	InvalidOpcode
	// InvalidEOF indicates an attempt to deploy code beginning with 0xEF.
	InvalidEOF
	// StackUnderflow indicates a pop from an empty operand stack.
	StackUnderflow
	// StackOverflow indicates a push onto a full (1024 item) stack.
	StackOverflow
	// MemoryOverflow indicates a memory expansion beyond addressable range.
	MemoryOverflow
	// ReturndataOverflow indicates an out-of-bounds return data access.
	ReturndataOverflow
	// InvalidJumpdest indicates a branch to a non-JUMPDEST target.
	InvalidJumpdest
	// CalldepthExceeded indicates the 1024 call depth limit was hit.
	CalldepthExceeded
	// AccountCollision indicates contract creation at an occupied address.
	AccountCollision
	// WriteProtection indicates a state modification inside a static call.
	WriteProtection
	// GasLimitReached indicates the transaction exceeds the block gas limit.
	GasLimitReached
)

var outcomeNames = map[Outcome]string{
	Return:               "RETURN",
	Revert:               "REVERT",
	Unknown:              "UNKNOWN",
	IntrinsicGas:         "INTRINSIC_GAS",
	OutOfGas:             "OUT_OF_GAS",
	CreationOutOfGas:     "CREATION_OUT_OF_GAS",
	TypeNotSupported:     "TYPE_NOT_SUPPORTED",
	NonceMaxValue:        "NONCE_MAX_VALUE",
	SenderNotEOA:         "SENDER_NOT_EOA",
	FeeCapLessThanBlocks: "FEECAP_LESS_BLOCKS",
	InsufficientFunds:    "INSUFFICIENT_FUNDS",
	CodesizeExceeded:     "CODESIZE_EXCEEDED",
	InvalidOpcode:        "INVALID_OPCODE",
	InvalidEOF:           "INVALID_EOF",
	StackUnderflow:       "STACK_UNDERFLOW",
	StackOverflow:        "STACK_OVERFLOW",
	MemoryOverflow:       "MEMORY_OVERFLOW",
	ReturndataOverflow:   "RETURNDATA_OVERFLOW",
	InvalidJumpdest:      "INVALID_JUMPDEST",
	CalldepthExceeded:    "CALLDEPTH_EXCEEDED",
	AccountCollision:     "ACCOUNT_COLLISION",
	WriteProtection:      "WRITE_PROTECTION",
	GasLimitReached:      "GAS_LIMIT_REACHED",
}

var outcomeValues = func() map[string]Outcome {
	m := make(map[string]Outcome, len(outcomeNames))
	for o, name := range outcomeNames {
		m[name] = o
	}
	return m
}()

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	name, ok := outcomeNames[o]
	if !ok {
		return nil, fmt.Errorf("invalid outcome %d", int(o))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	v, ok := outcomeValues[string(text)]
	if !ok {
		return fmt.Errorf("unknown outcome %q", text)
	}
	*o = v
	return nil
}
