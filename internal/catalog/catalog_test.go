// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "led", c.TypeName(0x01))
	assert.Equal(t, "display", c.TypeName(0x04))
	assert.Equal(t, "type-0x7A", c.TypeName(0x7A))

	assert.Equal(t, "GET_POS", c.OpcodeName(0x02, 0x80))
	assert.Equal(t, "SET_REPLY", c.OpcodeName(0x02, crumbs.OpcodeSetReply))
	assert.Equal(t, "QUERY", c.OpcodeName(0x7A, 0x90))
}

func TestCheckVersion(t *testing.T) {
	c := Default()

	ok := crumbs.VersionInfo{Library: crumbs.Version, Major: 1, Minor: 2}
	assert.NoError(t, c.CheckVersion(0x01, ok))

	assert.ErrorIs(t, c.CheckVersion(0x01, crumbs.VersionInfo{Library: 900, Major: 1}), crumbs.ErrLibraryTooOld)
	assert.ErrorIs(t, c.CheckVersion(0x01, crumbs.VersionInfo{Library: 1003, Major: 2}), crumbs.ErrMajorMismatch)

	// Unknown family only checks the library
	assert.NoError(t, c.CheckVersion(0x7A, crumbs.VersionInfo{Library: 1000, Major: 9}))
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
families:
  - type_id: 0x10
    name: heater
    module: {major: 2, minor: 1, patch: 0}
    opcodes:
      - {code: 0x01, name: SET_POWER}
      - {code: 0x80, name: GET_TEMP}
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	f, ok := c.Lookup(0x10)
	require.True(t, ok)
	assert.Equal(t, "heater", f.Name)
	assert.Equal(t, "2.1.0", f.Module.String())
	assert.Equal(t, "GET_TEMP", c.OpcodeName(0x10, 0x80))
}

func TestLoad_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[families]]
type_id = 32
name = "pump"

[families.module]
major = 1
minor = 3

[[families.opcodes]]
code = 1
name = "PRIME"
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pump", c.TypeName(0x20))
	assert.Equal(t, "PRIME", c.OpcodeName(0x20, 0x01))
	assert.ErrorIs(t, c.CheckVersion(0x20, crumbs.VersionInfo{Library: 1003, Major: 1, Minor: 2}), crumbs.ErrMinorTooOld)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("catalog.json")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Len(t, c.Families, 4)
}
