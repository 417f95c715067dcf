package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCmd runs the root command with args and returns stdout.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// seedWorkspace creates a small workspace with one code and one doc file.
func seedWorkspace(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "session.go"), []byte(`package auth

// NewSession creates an authenticated session for the user.
func NewSession(userID string) *Session {
	return &Session{UserID: userID}
}

// Session carries per-user request state.
type Session struct {
	UserID string
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte(`# Auth service

## Setup

Run the migration script before starting the server.
`), 0o644))
	return root
}

func TestRootCmd_IndexSearchStats(t *testing.T) {
	root := seedWorkspace(t)

	out, err := executeCmd(t, "index", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "chunks")

	out, err = executeCmd(t, "search", "NewSession", "--root", root, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Hits []struct {
			FilePath string `json:"file_path"`
		} `json:"hits"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, "session.go", resp.Hits[0].FilePath)

	out, err = executeCmd(t, "stats", "--root", root, "--json")
	require.NoError(t, err)
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.IndexedFiles)
	assert.Greater(t, stats.Chunks, 0)
	assert.Equal(t, stats.Embeddings, stats.VectorCount)
}

func TestRootCmd_SearchTextOutput(t *testing.T) {
	root := seedWorkspace(t)

	_, err := executeCmd(t, "index", "--root", root)
	require.NoError(t, err)

	out, err := executeCmd(t, "search", "migration script", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "README.md")
	assert.Contains(t, out, "results")
}

func TestRootCmd_SearchLanguageFilter(t *testing.T) {
	root := seedWorkspace(t)

	_, err := executeCmd(t, "index", "--root", root)
	require.NoError(t, err)

	out, err := executeCmd(t, "search", "session", "--root", root, "--language", "markdown", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Hits []struct {
			Language string `json:"language"`
		} `json:"hits"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	for _, hit := range resp.Hits {
		assert.Equal(t, "markdown", hit.Language)
	}
}

func TestRootCmd_RebuildRequiresConfirmation(t *testing.T) {
	root := seedWorkspace(t)

	out, err := executeCmd(t, "rebuild", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "--yes")
}

func TestRootCmd_RebuildWithConfirmation(t *testing.T) {
	root := seedWorkspace(t)

	_, err := executeCmd(t, "index", "--root", root)
	require.NoError(t, err)

	out, err := executeCmd(t, "rebuild", "--root", root, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "rebuilt")
}

func TestRootCmd_IndexSpecificPath(t *testing.T) {
	root := seedWorkspace(t)

	_, err := executeCmd(t, "index", "--root", root)
	require.NoError(t, err)

	out, err := executeCmd(t, "index", "--root", root, filepath.Join(root, "session.go"))
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged 1")
}

func TestRootCmd_InitWritesConfig(t *testing.T) {
	root := t.TempDir()

	out, err := executeCmd(t, "init", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, ".contextd.yaml")
	assert.FileExists(t, filepath.Join(root, ".contextd.yaml"))

	// A second run refuses to clobber the existing file.
	out, err = executeCmd(t, "init", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCmd(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "contextd version")
}
