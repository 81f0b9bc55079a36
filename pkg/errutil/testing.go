// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package errutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails t unless err carries code somewhere in its chain.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected an error with code %s", code)
	assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertErrorContext fails t unless err carries key with value in its oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	require.Error(t, err, "expected an error with context %s", key)
	got, ok := ContextValue(err, key)
	require.True(t, ok, "context key %q missing from %v", key, err)
	assert.Equal(t, value, got)
}
