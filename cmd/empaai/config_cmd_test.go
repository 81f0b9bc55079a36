// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empaai/empaai/pkg/errutil"
)

func TestConfigSchema_PrintsJSONSchema(t *testing.T) {
	out, err := execute(t, NewConfigCmd(), "config", "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Contains(t, schema, "properties")
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		out, err := execute(t, NewConfigCmd(), "config", "validate")
		require.NoError(t, err)
		assert.Equal(t, "configuration ok (environment=development, sessions=memory, mail=log)\n", out)
	})

	t.Run("flags are honored", func(t *testing.T) {
		out, err := execute(t, NewConfigCmd(), "config", "validate", "--mail-transport", "log", "--environment", "test")
		require.NoError(t, err)
		assert.Contains(t, out, "environment=test")
	})

	t.Run("production without a database is rejected", func(t *testing.T) {
		_, err := execute(t, NewConfigCmd(), "config", "validate", "--environment", "production")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("config file is read", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empaai.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sessions:\n  store: redis\n"), 0o600))

		out, err := execute(t, NewConfigCmd(), "--config", path, "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "sessions=redis")
	})
}

func TestConfigValidate_UsesXDGDefaultFile(t *testing.T) {
	cmd := NewConfigCmd()
	base := t.TempDir()
	path := filepath.Join(base, "empaai", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o600))

	// executeWithEnv resets XDG_CONFIG_HOME first, then applies env.
	out, err := executeWithEnv(t, map[string]string{"XDG_CONFIG_HOME": base}, cmd, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "environment=test")
}
