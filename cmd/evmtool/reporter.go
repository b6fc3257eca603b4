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

import "fmt"

const (
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

// fileResult is the per-file conversion status shown to the user.
type fileResult struct {
	Index   int
	Total   int
	File    string
	Skipped bool
	Size    int
	Err     error
}

func (r fileResult) String() string {
	progress := fmt.Sprintf("%s(%d/%d)%s", colorYellow, r.Index, r.Total, colorReset)
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s %s [%sFAIL%s] %v", progress, r.File, colorRed, colorReset, r.Err)
	case r.Skipped:
		return fmt.Sprintf("%s %s [%sSKIP%s]", progress, r.File, colorYellow, colorReset)
	case r.Size >= 1_000_000:
		return fmt.Sprintf("%s %s [OK] %s%s%s", progress, r.File, colorGreen, sizeString(r.Size), colorReset)
	default:
		return fmt.Sprintf("%s %s [OK] %s", progress, r.File, sizeString(r.Size))
	}
}

func sizeString(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fMB", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fKB", float64(n)/1_000)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
