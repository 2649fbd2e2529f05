package configpaths_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Alia5/usbforge/internal/configpaths"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCandidatePaths(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG paths")
	}
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	type testCase struct {
		name     string
		userPath string
		first    func(json, yaml, toml []string) string
	}
	cases := []testCase{
		{name: "json", userPath: "/tmp/a.json", first: func(j, _, _ []string) string { return j[0] }},
		{name: "yaml", userPath: "/tmp/a.yml", first: func(_, y, _ []string) string { return y[0] }},
		{name: "toml", userPath: "/tmp/a.toml", first: func(_, _, tm []string) string { return tm[0] }},
		{name: "unknown extension", userPath: "/tmp/a.conf", first: func(j, _, _ []string) string { return j[0] }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j, y, tm := configpaths.ConfigCandidatePaths(tc.userPath)
			assert.Equal(t, tc.userPath, tc.first(j, y, tm))
		})
	}

	j, _, _ := configpaths.ConfigCandidatePaths("")
	assert.Contains(t, j, filepath.Join("/xdg", "usbforge", "serve.json"))
}

func TestDefaultNamedConfigPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG paths")
	}
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	p, err := configpaths.DefaultNamedConfigPath("serve", "yml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg", "usbforge", "serve.yaml"), p)
}
