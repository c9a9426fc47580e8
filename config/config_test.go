package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsDefaults(t *testing.T) {
	c, err := Parse([]byte(`
[translate]
single_step = true

[log]
modules = "gen_mod,addr_mod"
`))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), c.Translate.MaxDepth)
	assert.True(t, c.Translate.SingleStep)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "gen_mod,addr_mod", c.Log.Modules)
	assert.Equal(t, ".", c.Output.Dir)
	assert.Empty(t, c.Mapping.Path)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("[translate\nmax_depth = 1"))
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	c := Default()
	c.Translate.MaxDepth = 9
	c.Mapping.Path = "/tmp/map"
	c.Telemetry.Endpoint = "localhost:4318"
	require.NoError(t, c.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
