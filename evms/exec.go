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

// Package evms drives external EVM implementations as subprocesses and
// normalizes their trace output into the canonical trace representation.
package evms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrTimeout indicates the subprocess exceeded its time budget and was
// killed.
var ErrTimeout = errors.New("process timed out")

// ExitError indicates the subprocess exited with a non-zero status. Stderr
// carries whatever the tool printed, which usually names the actual problem.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with status %d: %s", e.Code, e.Stderr)
}

// runCmd executes a command with a bounded time budget, returning its
// complete stdout and stderr. Both streams are drained concurrently with the
// process run: trace output routinely exceeds the OS pipe buffer, and a
// child blocked on a full pipe combined with a parent blocked in wait is a
// permanent deadlock. The two readers are joined before the process wait is
// collected.
func runCmd(ctx context.Context, timeout time.Duration, name string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", "", err
	}
	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("launching %s: %w", name, err)
	}
	var (
		outBuf, errBuf bytes.Buffer
		readers        errgroup.Group
	)
	readers.Go(func() error {
		_, err := io.Copy(&outBuf, stdout)
		return err
	})
	readers.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})
	readErr := readers.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return "", "", fmt.Errorf("%s after %v: %w", name, timeout, ErrTimeout)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return "", "", &ExitError{Code: exitErr.ExitCode(), Stderr: errBuf.String()}
		}
		return "", "", waitErr
	}
	if readErr != nil {
		return "", "", readErr
	}
	return outBuf.String(), errBuf.String(), nil
}
