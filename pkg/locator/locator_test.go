package locator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
}

func envOf(values map[string]string) LookupEnvFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestResolve_BundledLayouts(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		layout   string
	}{
		{"direct file", PlatformLinux, "backend/pdfwm_backend"},
		{"nested directory", PlatformLinux, "backend/pdfwm_backend/pdfwm_backend"},
		{"nested directory windows", PlatformWindows, "backend/pdfwm_backend/pdfwm_backend.exe"},
		{"sibling exe windows", PlatformWindows, "backend/pdfwm_backend.exe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources := t.TempDir()
			expected := filepath.Join(resources, filepath.FromSlash(tt.layout))
			writeFile(t, expected)

			loc := NewLocator(Options{ResourcesDir: resources}, logging.NewNopLogger(), WithLookupEnv(envOf(nil)))

			cmd, err := loc.Resolve(true, tt.platform)
			require.NoError(t, err)
			assert.True(t, cmd.Bundled)
			assert.Equal(t, expected, cmd.Path)
			assert.Empty(t, cmd.Args)
			assert.Equal(t, filepath.Dir(expected), cmd.Dir)
		})
	}
}

func TestResolve_BundledWinsOverInterpreterOverride(t *testing.T) {
	resources := t.TempDir()
	writeFile(t, filepath.Join(resources, "backend", "pdfwm_backend"))

	loc := NewLocator(
		Options{ResourcesDir: resources, Interpreter: "/opt/python"},
		logging.NewNopLogger(),
		WithLookupEnv(envOf(map[string]string{"PYTHON_BIN": "/usr/local/bin/python3.12"})),
	)

	cmd, err := loc.Resolve(true, PlatformLinux)
	require.NoError(t, err)
	assert.True(t, cmd.Bundled)
	assert.Equal(t, filepath.Join(resources, "backend", "pdfwm_backend"), cmd.Path)
}

func TestResolve_DirectoryIsNotUsedAsExecutable(t *testing.T) {
	resources := t.TempDir()
	// Directory named like the backend but without the executable inside
	require.NoError(t, os.MkdirAll(filepath.Join(resources, "backend", "pdfwm_backend", "lib"), 0755))

	loc := NewLocator(Options{ResourcesDir: resources}, logging.NewNopLogger(), WithLookupEnv(envOf(nil)))

	cmd, err := loc.Resolve(true, PlatformLinux)
	require.NoError(t, err)
	assert.False(t, cmd.Bundled)
	assert.Equal(t, "python3", cmd.Path)
	assert.Equal(t, []string{filepath.Join(resources, "backend", "app.py")}, cmd.Args)
}

func TestResolve_OnlyRegularFilesAreBundled(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		dirs     []string
	}{
		{"linux backend directory", PlatformLinux, []string{"backend/pdfwm_backend"}},
		{"linux nested directory", PlatformLinux, []string{"backend/pdfwm_backend/pdfwm_backend"}},
		{"windows nested exe directory", PlatformWindows, []string{"backend/pdfwm_backend/pdfwm_backend.exe"}},
		{"windows sibling exe directory", PlatformWindows, []string{"backend/pdfwm_backend", "backend/pdfwm_backend.exe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources := t.TempDir()
			for _, dir := range tt.dirs {
				require.NoError(t, os.MkdirAll(filepath.Join(resources, filepath.FromSlash(dir)), 0755))
			}

			loc := NewLocator(Options{ResourcesDir: resources}, logging.NewNopLogger(), WithLookupEnv(envOf(nil)))

			cmd, err := loc.Resolve(true, tt.platform)
			require.NoError(t, err)
			assert.False(t, cmd.Bundled)
			assert.Equal(t, tt.platform.DefaultInterpreter(), cmd.Path)
		})
	}
}

func TestResolve_InterpreterFallback(t *testing.T) {
	tests := []struct {
		name        string
		packaged    bool
		platform    Platform
		env         map[string]string
		interpreter string
		wantPath    string
		wantScript  func(resources, app string) string
	}{
		{
			name:       "packaged linux default",
			packaged:   true,
			platform:   PlatformLinux,
			wantPath:   "python3",
			wantScript: func(resources, app string) string { return filepath.Join(resources, "backend", "app.py") },
		},
		{
			name:       "unpackaged windows default",
			packaged:   false,
			platform:   PlatformWindows,
			wantPath:   "python",
			wantScript: func(resources, app string) string { return filepath.Join(app, "app.py") },
		},
		{
			name:        "env override wins over configured interpreter",
			packaged:    false,
			platform:    PlatformDarwin,
			env:         map[string]string{"PYTHON_BIN": "/usr/bin/python3.11"},
			interpreter: "/opt/python",
			wantPath:    "/usr/bin/python3.11",
			wantScript:  func(resources, app string) string { return filepath.Join(app, "app.py") },
		},
		{
			name:        "empty env override is ignored",
			packaged:    false,
			platform:    PlatformLinux,
			env:         map[string]string{"PYTHON_BIN": ""},
			interpreter: "/opt/python",
			wantPath:    "/opt/python",
			wantScript:  func(resources, app string) string { return filepath.Join(app, "app.py") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources := t.TempDir()
			app := t.TempDir()

			loc := NewLocator(
				Options{ResourcesDir: resources, AppDir: app, Interpreter: tt.interpreter},
				logging.NewNopLogger(),
				WithLookupEnv(envOf(tt.env)),
			)

			cmd, err := loc.Resolve(tt.packaged, tt.platform)
			require.NoError(t, err)

			script := tt.wantScript(resources, app)
			assert.False(t, cmd.Bundled)
			assert.Equal(t, tt.wantPath, cmd.Path)
			assert.Equal(t, []string{script}, cmd.Args)
			assert.Equal(t, filepath.Dir(script), cmd.Dir)
		})
	}
}

func TestResolve_CustomInterpreterEnv(t *testing.T) {
	loc := NewLocator(
		Options{AppDir: t.TempDir(), InterpreterEnv: "MY_PY"},
		logging.NewNopLogger(),
		WithLookupEnv(envOf(map[string]string{"PYTHON_BIN": "ignored", "MY_PY": "/custom/python"})),
	)

	cmd, err := loc.Resolve(false, PlatformLinux)
	require.NoError(t, err)
	assert.Equal(t, "/custom/python", cmd.Path)
}

func TestResolve_MissingRoot(t *testing.T) {
	loc := NewLocator(Options{AppDir: "/somewhere"}, logging.NewNopLogger())

	_, err := loc.Resolve(true, PlatformLinux)
	assert.True(t, errors.IsValidationError(err))
}

func TestPlatform(t *testing.T) {
	assert.Equal(t, ".exe", PlatformWindows.ExecutableExt())
	assert.Equal(t, "", PlatformLinux.ExecutableExt())
	assert.Equal(t, "python", PlatformWindows.DefaultInterpreter())
	assert.Equal(t, "python3", PlatformDarwin.DefaultInterpreter())
	assert.NotEmpty(t, CurrentPlatform())
}
