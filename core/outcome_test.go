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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeRoundTrip(t *testing.T) {
	for outcome, name := range outcomeNames {
		raw, err := json.Marshal(outcome)
		require.NoError(t, err, name)
		assert.Equal(t, `"`+name+`"`, string(raw))
		var back Outcome
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, outcome, back)
	}
}

func TestOutcomeUnknownName(t *testing.T) {
	var o Outcome
	require.Error(t, json.Unmarshal([]byte(`"NO_SUCH_OUTCOME"`), &o))
}

func TestOutcomeInvalidValue(t *testing.T) {
	_, err := json.Marshal(Outcome(999))
	require.Error(t, err)
}
