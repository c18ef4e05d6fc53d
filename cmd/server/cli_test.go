package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/server"
)

func executeCommand(args ...string) (string, error) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, root string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptbridge.yaml")
	content := fmt.Sprintf("script:\n  module_root: %q\nlogging:\n  output_paths: [\"stderr\"]\n", root)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHelpListsCommands(t *testing.T) {
	output, err := executeCommand("--help")
	require.NoError(t, err)

	for _, phrase := range []string{"serve", "check", "--config", "--dev"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr bool
	}{
		{name: "valid", files: map[string]string{"main.ts": "export const x: number = 1;"}},
		{name: "broken", files: map[string]string{"main.ts": "export const x: number = 1;", "bad.ts": "let = ;"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
			}

			output, err := executeCommand("check", "--config", writeConfig(t, root))
			if tt.wantErr {
				assert.ErrorIs(t, err, server.ErrPrecheck)
				assert.Equal(t, exitFailure, exitCode(err))
				return
			}
			require.NoError(t, err)
			assert.Contains(t, output, "are valid")
		})
	}
}

func TestCheckRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scriptbridge.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o644))

	_, err := executeCommand("check", "--config", path)
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitBind, exitCode(fmt.Errorf("%w: :80", server.ErrBind)))
	assert.Equal(t, exitEntry, exitCode(fmt.Errorf("%w: file:///main.ts", server.ErrEntry)))
	assert.Equal(t, exitFailure, exitCode(errors.New("other")))
}
