package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfileConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "workers.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestRegistry(t *testing.T) {
	validConfig := `
profiles:
  - id: dotnet-8
    binary: /opt/workers/xunit-worker
    runtime_version: "8.0.4"
    args: ["--stdio"]
`
	configPath := writeProfileConfig(t, validConfig)

	t.Run("profile loading", func(t *testing.T) {
		tests := []struct {
			name    string
			cfg     Config
			wantErr bool
		}{
			{
				name:    "valid config file",
				cfg:     Config{ProfileConfigFile: configPath},
				wantErr: false,
			},
			{
				name:    "invalid config path",
				cfg:     Config{ProfileConfigFile: "nonexistent.yaml"},
				wantErr: true,
			},
			{
				name:    "missing config path",
				cfg:     Config{},
				wantErr: true,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r, err := NewRegistry(tt.cfg)
				if (err != nil) != tt.wantErr {
					t.Errorf("NewRegistry() error = %v, wantErr %v", err, tt.wantErr)
					return
				}
				if err == nil {
					require.NotNil(t, r.GetConfig(), "config should be loaded")
				}
			})
		}
	})
}

func TestLoadConfig(t *testing.T) {
	configPath := writeProfileConfig(t, `
profiles:
  - id: dotnet-8
    binary: /opt/workers/xunit-worker
    runtime_version: "8.0.4"
`)

	file, err := loadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, file)
	require.Len(t, file.Profiles, 1)
	require.Equal(t, "dotnet-8", file.Profiles[0].ID)
	require.Equal(t, "8.0.4", file.Profiles[0].RuntimeVersion)
}

func TestProfileExtension(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		wantError string
	}{
		{
			name: "valid extension",
			config: `
profiles:
  - id: base
    binary: /opt/workers/xunit-worker
    env:
      DOTNET_NOLOGO: "1"
  - id: child
    extends: [base]
    runtime_version: "8.0.4"
`,
			wantError: "",
		},
		{
			name: "circular extension",
			config: `
profiles:
  - id: p1
    extends: [p2]
    binary: /bin/a
  - id: p2
    extends: [p1]
    binary: /bin/b
`,
			wantError: "circular extension detected",
		},
		{
			name: "self extension",
			config: `
profiles:
  - id: p1
    extends: [p1]
    binary: /bin/a
`,
			wantError: "circular extension detected",
		},
		{
			name: "non-existent parent",
			config: `
profiles:
  - id: p1
    extends: [nonexistent]
    binary: /bin/a
`,
			wantError: "extends non-existent profile",
		},
		{
			name: "duplicate id",
			config: `
profiles:
  - id: p1
    binary: /bin/a
  - id: p1
    binary: /bin/b
`,
			wantError: "duplicate profile id",
		},
		{
			name: "no binary after extension",
			config: `
profiles:
  - id: p1
    runtime_version: "8.0.4"
`,
			wantError: "has no binary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeProfileConfig(t, tt.config)

			r, err := NewRegistry(Config{ProfileConfigFile: configPath})

			if tt.wantError != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantError)
			} else {
				require.NoError(t, err)
				require.NotNil(t, r)
			}
		})
	}
}

func TestProfileExtensionMergesSettings(t *testing.T) {
	configPath := writeProfileConfig(t, `
profiles:
  - id: base
    binary: /opt/workers/xunit-worker
    args: ["--stdio"]
    env:
      DOTNET_NOLOGO: "1"
      DOTNET_CLI_TELEMETRY_OPTOUT: "1"
    support_assemblies: ["Common.dll"]
  - id: dotnet-8
    extends: [base]
    runtime_version: "8.0.4"
    args: ["--roll-forward", "LatestMinor"]
    env:
      DOTNET_NOLOGO: "0"
    support_assemblies: ["Helpers.dll"]
`)

	reg, err := NewRegistry(Config{ProfileConfigFile: configPath})
	require.NoError(t, err)

	p, err := reg.Profile("dotnet-8")
	require.NoError(t, err)

	assert.Equal(t, "/opt/workers/xunit-worker", p.Binary)
	assert.Equal(t, "8.0.4", p.RuntimeVersion)
	// Parent args first, own args appended after.
	assert.Equal(t, []string{"--stdio", "--roll-forward", "LatestMinor"}, p.Args)
	// Own env wins over inherited env.
	assert.Equal(t, "0", p.Env["DOTNET_NOLOGO"])
	assert.Equal(t, "1", p.Env["DOTNET_CLI_TELEMETRY_OPTOUT"])
	assert.Equal(t, []string{"Common.dll", "Helpers.dll"}, p.SupportAssemblies)
}

func TestProfileExtensionResolvesTransitively(t *testing.T) {
	configPath := writeProfileConfig(t, `
profiles:
  - id: base
    binary: /opt/workers/xunit-worker
    runtime_version: "8.0.4"
    env:
      DOTNET_NOLOGO: "1"
  - id: mid
    extends: [base]
    args: ["--stdio"]
  - id: leaf
    extends: [mid]
    env:
      WORKER_MODE: "ci"
`)

	reg, err := NewRegistry(Config{ProfileConfigFile: configPath})
	require.NoError(t, err)

	p, err := reg.Profile("leaf")
	require.NoError(t, err)

	// base's settings reach leaf through mid.
	assert.Equal(t, "/opt/workers/xunit-worker", p.Binary)
	assert.Equal(t, "8.0.4", p.RuntimeVersion)
	assert.Equal(t, []string{"--stdio"}, p.Args)
	assert.Equal(t, "1", p.Env["DOTNET_NOLOGO"])
	assert.Equal(t, "ci", p.Env["WORKER_MODE"])
}

func TestProfileDefaultTimeout(t *testing.T) {
	configPath := writeProfileConfig(t, `
profiles:
  - id: with-timeout
    binary: /bin/a
    connect_timeout: 30s
  - id: without-timeout
    binary: /bin/b
`)

	reg, err := NewRegistry(Config{
		ProfileConfigFile: configPath,
		DefaultTimeout:    10 * time.Second,
	})
	require.NoError(t, err)

	p, err := reg.Profile("with-timeout")
	require.NoError(t, err)
	require.NotNil(t, p.ConnectTimeout)
	assert.Equal(t, 30*time.Second, time.Duration(*p.ConnectTimeout))

	p, err = reg.Profile("without-timeout")
	require.NoError(t, err)
	require.NotNil(t, p.ConnectTimeout)
	assert.Equal(t, 10*time.Second, time.Duration(*p.ConnectTimeout))
}

func TestProfilesOrderedByID(t *testing.T) {
	configPath := writeProfileConfig(t, `
profiles:
  - id: zeta
    binary: /bin/z
  - id: alpha
    binary: /bin/a
`)

	reg, err := NewRegistry(Config{ProfileConfigFile: configPath})
	require.NoError(t, err)

	profiles := reg.Profiles()
	require.Len(t, profiles, 2)
	assert.Equal(t, "alpha", profiles[0].ID)
	assert.Equal(t, "zeta", profiles[1].ID)
}

func TestUnknownProfile(t *testing.T) {
	configPath := writeProfileConfig(t, `
profiles:
  - id: known
    binary: /bin/a
`)

	reg, err := NewRegistry(Config{ProfileConfigFile: configPath})
	require.NoError(t, err)

	_, err = reg.Profile("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown worker profile")
}
