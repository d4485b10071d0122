package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, time.Second, DefaultConfig.Lock.PollTimeout)
	assert.Equal(t, 10*time.Second, DefaultConfig.Lock.FreezeAfter)
	assert.Equal(t, 5*time.Second, DefaultConfig.Lock.FadeBefore)
	assert.Equal(t, "shaderlock", DefaultConfig.Lock.PamService)
	assert.False(t, DefaultConfig.Lock.SkipAuth)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"zero poll timeout", func(c *Config) { c.Lock.PollTimeout = 0 }, true},
		{"negative poll timeout", func(c *Config) { c.Lock.PollTimeout = -time.Second }, true},
		{"empty pam service", func(c *Config) { c.Lock.PamService = "" }, true},
		{"missing icon", func(c *Config) { c.Lock.IconPath = "/nonexistent/icon.png" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveShader(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing path", func(t *testing.T) {
		cfg := DefaultConfig
		cfg.Lock.ShaderPath = filepath.Join(dir, "nope")
		_, err := cfg.ResolveShader()
		assert.Error(t, err)
	})

	t.Run("single file", func(t *testing.T) {
		file := filepath.Join(dir, "wave.frag")
		require.NoError(t, os.WriteFile(file, []byte("void main() {}"), 0644))

		cfg := DefaultConfig
		cfg.Lock.ShaderPath = file
		got, err := cfg.ResolveShader()
		require.NoError(t, err)
		assert.Equal(t, file, got)
	})

	t.Run("directory pick", func(t *testing.T) {
		shaders := filepath.Join(dir, "shaders")
		require.NoError(t, os.Mkdir(shaders, 0755))
		want := map[string]bool{}
		for _, name := range []string{"a.frag", "b.frag"} {
			path := filepath.Join(shaders, name)
			require.NoError(t, os.WriteFile(path, nil, 0644))
			want[path] = true
		}
		require.NoError(t, os.WriteFile(filepath.Join(shaders, "readme.txt"), nil, 0644))

		cfg := DefaultConfig
		cfg.Lock.ShaderPath = shaders
		for i := 0; i < 10; i++ {
			got, err := cfg.ResolveShader()
			require.NoError(t, err)
			assert.True(t, want[got], "picked %q", got)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		empty := filepath.Join(dir, "empty")
		require.NoError(t, os.Mkdir(empty, 0755))

		cfg := DefaultConfig
		cfg.Lock.ShaderPath = empty
		_, err := cfg.ResolveShader()
		assert.Error(t, err)
	})
}
