package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceProcess = `
key: InvoiceProcess
activities:
  - id: start
    type: START_EVENT
    outgoing: [end]
  - id: end
    type: END_EVENT
    incoming: [start]
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test")
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestValidateReportsValidAndInvalidFiles(t *testing.T) {
	// setup
	dir := t.TempDir()
	valid := filepath.Join(dir, "invoice.yaml")
	invalid := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(invoiceProcess), 0o600))
	require.NoError(t, os.WriteFile(invalid, []byte("key: EmptyProcess\n"), 0o600))

	// when
	validOut, validErr := run(t, "validate", valid)
	invalidOut, invalidErr := run(t, "validate", valid, invalid)

	// then
	assert.NoError(t, validErr)
	assert.Contains(t, validOut, "InvoiceProcess is valid (2 activities)")
	assert.Error(t, invalidErr)
	assert.Contains(t, invalidOut, "empty.yaml")
}

func TestDeployWritesIntoSqliteStorage(t *testing.T) {
	// setup
	dir := t.TempDir()
	file := filepath.Join(dir, "invoice.yaml")
	require.NoError(t, os.WriteFile(file, []byte(invoiceProcess), 0o600))
	conf := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("storage:\n  driver: sqlite\n  path: "+filepath.Join(dir, "deploy.db")+"\n"), 0o600))

	// when
	first, err := run(t, "deploy", "-c", conf, file)
	require.NoError(t, err)
	second, err := run(t, "deploy", "-c", conf, file)
	require.NoError(t, err)

	// then
	assert.Contains(t, first, "deployed InvoiceProcess version 1")
	assert.Contains(t, second, "deployed InvoiceProcess version 1")
}

func TestDeployWithoutServerRequiresSqlite(t *testing.T) {
	// setup
	dir := t.TempDir()
	conf := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("storage:\n  driver: memory\n"), 0o600))

	// when
	_, err := run(t, "deploy", "-c", conf, filepath.Join(dir, "missing.yaml"))

	// then
	assert.ErrorContains(t, err, "requires the sqlite storage driver")
}
