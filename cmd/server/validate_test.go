package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestValidate_ShippedConfig(t *testing.T) {
	out, err := runCLI(t, "validate", "--config", "../../configs/actions.yaml", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "ok (5 actions, 2 dependencies)")
}

func TestValidate_Cycle(t *testing.T) {
	path := writeFile(t, `version: "1"
actions:
  - id: a
    depends_on: [b]
    handler: {type: log, params: {message: a}}
  - id: b
    depends_on: [a]
    handler: {type: log, params: {message: b}}
`)
	_, err := runCLI(t, "validate", "-c", path)
	assert.ErrorContains(t, err, "dependency cycle")
}

func TestValidate_BadHandlerParams(t *testing.T) {
	path := writeFile(t, `version: "1"
actions:
  - id: hook
    handler: {type: webhook, params: {url: "not-a-url"}}
`)
	_, err := runCLI(t, "validate", "-c", path)
	assert.ErrorContains(t, err, "action hook")
}

func TestRoot_InvalidLogLevel(t *testing.T) {
	_, err := runCLI(t, "validate", "--log-level", "chatty")
	assert.ErrorContains(t, err, "invalid --log-level")
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "actionflow dev")
}
