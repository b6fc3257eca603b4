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

package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/DavePearce/EvmTools/core"
	"github.com/DavePearce/EvmTools/evms"
)

// converter carries the settings of one conversion run.
type converter struct {
	evm         *evms.Geth
	fork        string
	minRun      int
	gzip        bool
	prettify    bool
	incremental bool
	outDir      string
	parallel    int
}

func convert(ctx *cli.Context) error {
	setupLogging(ctx)
	if ctx.NArg() == 0 {
		return errors.New("no state test files given")
	}
	conv := &converter{
		evm: &evms.Geth{
			Cmd:        ctx.String(EvmFlag.Name),
			Timeout:    ctx.Duration(TimeoutFlag.Name),
			StackLimit: ctx.Int(StackFlag.Name),
		},
		fork:        ctx.String(ForkFlag.Name),
		minRun:      ctx.Int(AbbreviateFlag.Name),
		gzip:        ctx.Bool(GzipFlag.Name),
		prettify:    ctx.Bool(PrettifyFlag.Name),
		incremental: ctx.Bool(IncrementalFlag.Name),
		outDir:      ctx.String(OutFlag.Name),
		parallel:    ctx.Int(ParallelFlag.Name),
	}
	version, err := conv.evm.Version(ctx.Context)
	if err != nil {
		return fmt.Errorf("probing %s: %w", conv.evm.Cmd, err)
	}
	log.Info("Using external EVM", "cmd", conv.evm.Cmd, "version", version)

	files, err := collectFiles(ctx.Args().Slice(), ctx.StringSlice(IncludesFlag.Name), ctx.StringSlice(ExcludesFlag.Name))
	if err != nil {
		return err
	}
	var failed int
	start := time.Now()
	for i, file := range files {
		result := fileResult{Index: i + 1, Total: len(files), File: file}
		result.Size, result.Skipped, result.Err = conv.convertFile(ctx.Context, file)
		if result.Err != nil {
			failed++
		}
		fmt.Fprintln(os.Stderr, result)
	}
	log.Info("Conversion done", "files", len(files), "failed", failed, "elapsed", common.PrettyDuration(time.Since(start)))
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// collectFiles expands the given paths into the list of state test files to
// process, walking directories recursively and applying the include and
// exclude patterns to base names.
func collectFiles(paths, includes, excludes []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if selected(filepath.Base(path), includes, excludes) {
				files = append(files, path)
			}
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
				return nil
			}
			if selected(d.Name(), includes, excludes) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func selected(name string, includes, excludes []string) bool {
	for _, pattern := range excludes {
		if ok, _ := filepath.Match(pattern, name); ok {
			return false
		}
	}
	if len(includes) == 0 {
		return true
	}
	for _, pattern := range includes {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// convertFile converts one state test file, writing the resulting trace test
// document to the output directory (or stdout when none is configured). It
// reports the generated size and whether the file was skipped as up to date.
func (conv *converter) convertFile(ctx context.Context, path string) (int, bool, error) {
	outPath := conv.outputPath(path)
	if conv.incremental && outPath != "" && upToDate(path, outPath) {
		return 0, true, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, false, err
	}
	tests, err := core.ParseStateTests(src)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	doc := make(map[string]json.RawMessage, len(tests))
	for _, st := range tests {
		converted, err := conv.convertTest(ctx, st)
		if err != nil {
			return 0, false, err
		}
		raw, err := converted.EncodeJSON(conv.minRun)
		if err != nil {
			return 0, false, err
		}
		doc[st.Name] = raw
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return 0, false, err
	}
	if conv.prettify {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", "  "); err != nil {
			return 0, false, err
		}
		out = buf.Bytes()
	}
	return len(out), false, conv.write(outPath, out)
}

// convertTest executes every selected instance of one state test, producing
// its trace test document. Instances that fail to execute are dropped with an
// error log; one broken instance must not sink the rest of the file.
func (conv *converter) convertTest(ctx context.Context, st *core.StateTest) (*core.TraceTest, error) {
	out := &core.TraceTest{
		Name:  st.Name,
		Pre:   st.Pre,
		Env:   st.Env,
		Forks: make(map[string][]core.TraceInstance),
	}
	for _, fork := range st.Forks() {
		if conv.fork != "" && conv.fork != fork {
			continue
		}
		instances := st.Post[fork]
		results := make([]*core.TraceInstance, len(instances))
		var group errgroup.Group
		group.SetLimit(max(conv.parallel, 1))
		for i := range instances {
			i := i
			group.Go(func() error {
				inst, err := conv.convertInstance(ctx, st, &instances[i])
				if err != nil {
					log.Error("Instance failed", "test", st.Name, "id", instances[i].ID(), "err", err)
					return nil
				}
				results[i] = inst
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
		converted := make([]core.TraceInstance, 0, len(results))
		for _, inst := range results {
			if inst != nil {
				converted = append(converted, *inst)
			}
		}
		out.Forks[fork] = converted
	}
	return out, nil
}

func (conv *converter) convertInstance(ctx context.Context, st *core.StateTest, inst *core.Instance) (*core.TraceInstance, error) {
	tx, err := st.Tx.Instantiate(inst.Indexes)
	if err != nil {
		return nil, err
	}
	trace, err := conv.evm.T8n(ctx, inst.Fork, &st.Env, st.Pre, tx)
	if err != nil {
		return nil, err
	}
	return &core.TraceInstance{
		ID: inst.ID(),
		Tx: core.TraceTx{
			Transaction: tx,
			Outcome:     trace.Outcome,
			Data:        trace.Data,
			Trace:       trace,
		},
	}, nil
}

// outputPath determines where the converted document goes; empty means
// stdout.
func (conv *converter) outputPath(input string) string {
	if conv.outDir == "" {
		return ""
	}
	name := filepath.Base(input)
	if conv.gzip {
		name += ".gz"
	}
	return filepath.Join(conv.outDir, name)
}

// upToDate reports whether the output file exists and is newer than the
// input.
func upToDate(input, output string) bool {
	in, err := os.Stat(input)
	if err != nil {
		return false
	}
	out, err := os.Stat(output)
	if err != nil {
		return false
	}
	return out.ModTime().After(in.ModTime())
}

func (conv *converter) write(path string, out []byte) error {
	if path == "" {
		_, err := fmt.Printf("%s\n", out)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if conv.gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(out); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		out = buf.Bytes()
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return err
	}
	log.Debug("Wrote trace tests", "file", path, "size", len(out))
	return nil
}
