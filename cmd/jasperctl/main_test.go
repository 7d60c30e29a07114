package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"jasper_srv/internal/jasper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	spec, err := parseSpec("invoice")
	require.NoError(t, err)
	assert.Equal(t, jasper.Single("invoice"), spec)

	spec, err = parseSpec(`{"invoice": ["invoice_lines"]}`)
	require.NoError(t, err)
	assert.Equal(t, jasper.WithDependencies("invoice", "invoice_lines"), spec)

	spec, err = parseSpec(`["a", "b"]`)
	require.NoError(t, err)
	assert.Equal(t, jasper.Independent("a", "b"), spec)

	_, err = parseSpec("  ")
	assert.ErrorIs(t, err, jasper.ErrInvalidInput)
}

func setupWorkspace(t *testing.T) (dir, binary, input string) {
	dir = t.TempDir()
	binary = filepath.Join(dir, "jasperstarter")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))
	input = filepath.Join(dir, "report.jrxml")
	require.NoError(t, os.WriteFile(input, []byte("<jasperReport/>"), 0o644))
	return dir, binary, input
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandPrintsCompile(t *testing.T) {
	dir, binary, input := setupWorkspace(t)

	out, err := runCLI(t, "--binary", binary, "--resource-dir", dir, "command", "compile", input)
	require.NoError(t, err)
	assert.Contains(t, out, "jasperstarter compile ")
	assert.Contains(t, out, "report.jrxml")
}

func TestCommandPrintsConvert(t *testing.T) {
	dir, binary, input := setupWorkspace(t)

	out, err := runCLI(t, "--binary", binary, "--resource-dir", dir,
		"command", "convert", input, "-f", "pdf,xls", "-P", "year=2024")
	require.NoError(t, err)
	assert.Contains(t, out, " process ")
	assert.Contains(t, out, "-f pdf xls")
	assert.Contains(t, out, "year=2024")
}

func TestCommandRejectsInvalidFormat(t *testing.T) {
	dir, binary, input := setupWorkspace(t)

	_, err := runCLI(t, "--binary", binary, "--resource-dir", dir, "command", "convert", input, "-f", "gif")
	assert.ErrorIs(t, err, jasper.ErrInvalidFormat)
}

func TestCommandMissingInput(t *testing.T) {
	dir, binary, _ := setupWorkspace(t)

	_, err := runCLI(t, "--binary", binary, "--resource-dir", dir, "command", "params", filepath.Join(dir, "nope.jasper"))
	assert.ErrorIs(t, err, jasper.ErrNotFound)
}
