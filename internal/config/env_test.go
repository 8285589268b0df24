package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBool(t *testing.T) {
	for _, raw := range []string{"1", "true", "YES", "y", "On", " true "} {
		v, ok := ParseBool(raw)
		assert.True(t, ok, raw)
		assert.True(t, v, raw)
	}

	for _, raw := range []string{"0", "false", "NO", "n", "Off"} {
		v, ok := ParseBool(raw)
		assert.True(t, ok, raw)
		assert.False(t, v, raw)
	}

	for _, raw := range []string{"", "maybe", "2", "auto"} {
		_, ok := ParseBool(raw)
		assert.False(t, ok, raw)
	}
}

func TestBoolOrAuto(t *testing.T) {
	assert.Nil(t, BoolOrAuto("auto"))
	assert.Nil(t, BoolOrAuto(" AUTO "))
	assert.Nil(t, BoolOrAuto(""))
	assert.Nil(t, BoolOrAuto("garbage"))

	v := BoolOrAuto("yes")
	require.NotNil(t, v)
	assert.True(t, *v)

	v = BoolOrAuto("off")
	require.NotNil(t, v)
	assert.False(t, *v)
}

func TestReadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMinioEndpoint, "host:9000")
	t.Setenv(EnvDifyServiceAPIKey, "key")
	t.Setenv(EnvAutoDify, "auto")

	env := ReadEnvOverrides()
	assert.Equal(t, "host:9000", env.MinioEndpoint)
	assert.Equal(t, "key", env.DifyServiceAPIKey)
	assert.Equal(t, "auto", env.AutoDify)
	assert.Empty(t, env.MinioAccessKey)
}

func TestDefaultConfigDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	assert.Equal(t, dir, DefaultConfigDir())
}
