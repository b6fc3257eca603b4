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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeString(t *testing.T) {
	assert.Equal(t, "10B", sizeString(10))
	assert.Equal(t, "2.5KB", sizeString(2500))
	assert.Equal(t, "1.2MB", sizeString(1_200_000))
}

func TestFileResultString(t *testing.T) {
	ok := fileResult{Index: 1, Total: 3, File: "add11.json", Size: 512}
	assert.Contains(t, ok.String(), "(1/3)")
	assert.Contains(t, ok.String(), "[OK] 512B")

	skip := fileResult{Index: 2, Total: 3, File: "add11.json", Skipped: true}
	assert.Contains(t, skip.String(), "SKIP")

	fail := fileResult{Index: 3, Total: 3, File: "add11.json", Err: errors.New("boom")}
	assert.Contains(t, fail.String(), "FAIL")
	assert.Contains(t, fail.String(), "boom")
}
