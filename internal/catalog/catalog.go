// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package catalog maps CRUMBS type IDs and opcodes to device family names
// and expected module versions.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/crumbs/pkg/crumbs"
)

// Opcode names one application opcode of a family
type Opcode struct {
	Code uint8  `yaml:"code" toml:"code"`
	Name string `yaml:"name" toml:"name"`
}

// ModuleVersion is the module protocol version a controller expects
type ModuleVersion struct {
	Major uint8 `yaml:"major" toml:"major"`
	Minor uint8 `yaml:"minor" toml:"minor"`
	Patch uint8 `yaml:"patch" toml:"patch"`
}

// String returns "major.minor.patch"
func (v ModuleVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Family describes one peripheral type
type Family struct {
	TypeID  uint8         `yaml:"type_id" toml:"type_id"`
	Name    string        `yaml:"name" toml:"name"`
	Module  ModuleVersion `yaml:"module" toml:"module"`
	Opcodes []Opcode      `yaml:"opcodes" toml:"opcodes"`
}

// Catalog is a set of families indexed by type ID
type Catalog struct {
	Families []Family `yaml:"families" toml:"families"`

	byType map[uint8]int
}

// New indexes families. Later entries win on duplicate type IDs.
func New(families []Family) *Catalog {
	c := &Catalog{Families: families}
	c.index()
	return c
}

func (c *Catalog) index() {
	c.byType = make(map[uint8]int, len(c.Families))
	for i, f := range c.Families {
		c.byType[f.TypeID] = i
	}
}

// Default returns the built-in LHWIT example family
func Default() *Catalog {
	return New([]Family{
		{
			TypeID: 0x01,
			Name:   "led",
			Module: ModuleVersion{1, 0, 0},
			Opcodes: []Opcode{
				{0x01, "SET_ALL"},
				{0x02, "SET_ONE"},
				{0x03, "BLINK"},
				{0x80, "GET_STATE"},
				{0x81, "GET_BLINK"},
			},
		},
		{
			TypeID: 0x02,
			Name:   "servo",
			Module: ModuleVersion{1, 0, 0},
			Opcodes: []Opcode{
				{0x01, "SET_POS"},
				{0x02, "SET_SPEED"},
				{0x03, "SWEEP"},
				{0x80, "GET_POS"},
				{0x81, "GET_SPEED"},
			},
		},
		{
			TypeID: 0x03,
			Name:   "calculator",
			Module: ModuleVersion{1, 0, 0},
			Opcodes: []Opcode{
				{0x01, "ADD"},
				{0x02, "SUB"},
				{0x03, "MUL"},
				{0x04, "DIV"},
				{0x80, "GET_RESULT"},
				{0x81, "GET_HIST_META"},
			},
		},
		{
			TypeID: 0x04,
			Name:   "display",
			Module: ModuleVersion{1, 0, 0},
			Opcodes: []Opcode{
				{0x01, "SET_NUMBER"},
				{0x02, "SET_SEGMENTS"},
				{0x03, "SET_BRIGHTNESS"},
				{0x04, "CLEAR"},
				{0x80, "GET_VALUE"},
			},
		},
	})
}

// Load reads a catalog file. The format is chosen by extension: .yaml and
// .yml use YAML, .toml uses TOML.
func Load(path string) (*Catalog, error) {
	var c Catalog

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("unmarshal catalog: %w", err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(path))
	}

	c.index()
	return &c, nil
}

// LoadOrDefault loads path, or returns Default when path is empty
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Lookup returns the family for a type ID
func (c *Catalog) Lookup(typeID uint8) (Family, bool) {
	if c == nil {
		return Family{}, false
	}
	i, ok := c.byType[typeID]
	if !ok {
		return Family{}, false
	}
	return c.Families[i], true
}

// TypeName returns the family name, or a hex placeholder for unknown types
func (c *Catalog) TypeName(typeID uint8) string {
	if f, ok := c.Lookup(typeID); ok {
		return f.Name
	}
	return fmt.Sprintf("type-0x%02X", typeID)
}

// OpcodeName returns the family's name for opcode, falling back to the
// protocol-level class name
func (c *Catalog) OpcodeName(typeID, opcode uint8) string {
	if f, ok := c.Lookup(typeID); ok {
		for _, op := range f.Opcodes {
			if op.Code == opcode {
				return op.Name
			}
		}
	}
	return crumbs.FormatOpcode(opcode)
}

// CheckVersion validates a version reply against the library minimum and
// the family's expected module version. Unknown families only get the
// library check.
func (c *Catalog) CheckVersion(typeID uint8, info crumbs.VersionInfo) error {
	if err := crumbs.CheckLibraryCompat(info.Library); err != nil {
		return err
	}
	f, ok := c.Lookup(typeID)
	if !ok {
		return nil
	}
	return crumbs.CheckModuleCompat(info.Major, info.Minor, f.Module.Major, f.Module.Minor)
}
