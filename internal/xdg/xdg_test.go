// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package xdg_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empaai/empaai/internal/xdg"
	"github.com/empaai/empaai/pkg/errutil"
)

func TestConfigDir(t *testing.T) {
	t.Run("honors XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		got, err := xdg.ConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/custom/config/empaai", got)
	})

	t.Run("falls back to HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/tester")
		got, err := xdg.ConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/home/tester/.config/empaai", got)
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	got, err := xdg.ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config/empaai/config.yaml", got)
}

func TestFindConfigFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		got, err := xdg.FindConfigFile()
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("existing file", func(t *testing.T) {
		base := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", base)
		path := filepath.Join(base, "empaai", "config.yaml")
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

		got, err := xdg.FindConfigFile()
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})

	t.Run("directory in place of the file", func(t *testing.T) {
		base := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", base)
		require.NoError(t, os.MkdirAll(filepath.Join(base, "empaai", "config.yaml"), 0o700))

		_, err := xdg.FindConfigFile()
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "XDG_STAT_FAILED")
	})
}
