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

// evmtool converts Ethereum reference state tests into trace tests by
// executing every transaction instance through an external EVM and capturing
// the instruction-level traces.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/DavePearce/EvmTools/evms"
	"github.com/DavePearce/EvmTools/hexutil"
)

var (
	// Selection flags.
	ForkFlag = &cli.StringFlag{
		Name:  "fork",
		Usage: "Convert only instances of the given fork (e.g. Berlin).",
	}
	IncludesFlag = &cli.StringSliceFlag{
		Name:  "includes",
		Usage: "Process only files whose name matches one of these glob patterns.",
	}
	ExcludesFlag = &cli.StringSliceFlag{
		Name:  "excludes",
		Usage: "Skip files whose name matches one of these glob patterns.",
	}

	// Output flags.
	OutFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Directory to write trace tests into (stdout when unset).",
	}
	GzipFlag = &cli.BoolFlag{
		Name:  "gzip",
		Usage: "Compress generated files with gzip.",
	}
	PrettifyFlag = &cli.BoolFlag{
		Name:  "prettify",
		Usage: "Indent generated JSON.",
	}
	AbbreviateFlag = &cli.IntFlag{
		Name:  "abbreviate",
		Usage: "Minimum byte run to abbreviate in hex dumps (0 disables).",
		Value: hexutil.DefaultAbbrevRun,
	}
	IncrementalFlag = &cli.BoolFlag{
		Name:  "incremental",
		Usage: "Skip files whose output is already up to date.",
	}

	// Execution flags.
	EvmFlag = &cli.StringFlag{
		Name:  "evm",
		Usage: "External EVM binary to drive.",
		Value: evms.DefaultCmd,
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Time budget per transaction execution.",
		Value: evms.DefaultTimeout,
	}
	StackFlag = &cli.IntFlag{
		Name:  "stack",
		Usage: "Number of topmost stack items to retain per step (0 keeps all).",
		Value: evms.DefaultStackLimit,
	}
	ParallelFlag = &cli.IntFlag{
		Name:  "parallel",
		Usage: "Number of transactions to execute concurrently.",
		Value: 1,
	}
	VerbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail.",
		Value: 3,
	}
)

var app = &cli.App{
	Name:   "evmtool",
	Usage:  "convert Ethereum state tests into trace tests",
	Action: convert,
	Flags: []cli.Flag{
		ForkFlag,
		IncludesFlag,
		ExcludesFlag,
		OutFlag,
		GzipFlag,
		PrettifyFlag,
		AbbreviateFlag,
		IncrementalFlag,
		EvmFlag,
		TimeoutFlag,
		StackFlag,
		ParallelFlag,
		VerbosityFlag,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) {
	verbosity := log.FromLegacyLevel(ctx.Int(VerbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, verbosity, true)))
}
