package jasper

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	testBinary      = "/opt/jasperstarter/bin/jasperstarter"
	testResourceDir = "/srv/resources"
	testReportDir   = "/srv/reports"
)

// fakeRunner stands in for jasperstarter. By default compile writes
// <-o>.jasper and process writes <-o>.<format>.
type fakeRunner struct {
	fs afero.Fs

	mu      sync.Mutex
	calls   []Command
	options []RunOptions
	inputs  map[string][]byte

	compile        func(cmd Command) ([]string, error)
	process        func(cmd Command) ([]string, error)
	listParameters func(cmd Command) ([]string, error)
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command, opts RunOptions) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.options = append(f.options, opts)
	f.mu.Unlock()

	switch cmd.Operation() {
	case opCompile:
		if f.compile != nil {
			return f.compile(cmd)
		}
		data, err := afero.ReadFile(f.fs, cmd.Args[1])
		if err != nil {
			return nil, err
		}
		return nil, afero.WriteFile(f.fs, flagValue(cmd.Args, "-o")+compiledExt, append([]byte("compiled:"), data...), 0o644)
	case opProcess:
		data, err := afero.ReadFile(f.fs, cmd.Args[1])
		if err != nil {
			return nil, fmt.Errorf("process input unreadable: %w", err)
		}
		f.mu.Lock()
		if f.inputs == nil {
			f.inputs = map[string][]byte{}
		}
		f.inputs[cmd.Args[1]] = data
		f.mu.Unlock()
		if f.process != nil {
			return f.process(cmd)
		}
		out := flagValue(cmd.Args, "-o") + "." + flagValue(cmd.Args, "-f")
		return nil, afero.WriteFile(f.fs, out, []byte("%PDF-1.4 rendered from "+string(data)), 0o644)
	case opListParameters:
		if f.listParameters != nil {
			return f.listParameters(cmd)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected operation %q", cmd.Operation())
}

func (f *fakeRunner) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ops = append(ops, c.Operation())
	}
	return ops
}

func (f *fakeRunner) callsFor(op string) []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Command
	for _, c := range f.calls {
		if c.Operation() == op {
			out = append(out, c)
		}
	}
	return out
}

// flagValue returns the argument following flag, or "".
func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func setupTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func setupTestJasper(t *testing.T) (*Jasper, afero.Fs, *fakeRunner) {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testBinary, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, fs.MkdirAll(testResourceDir, 0o755))
	require.NoError(t, fs.MkdirAll(testReportDir, 0o755))

	runner := &fakeRunner{fs: fs}
	j, err := New(Options{
		Binary:      testBinary,
		ResourceDir: testResourceDir,
		Runner:      runner,
		Fs:          fs,
		Logger:      setupTestLogger(),
	})
	require.NoError(t, err)
	return j, fs, runner
}

func writeTemplate(t *testing.T, fs afero.Fs, name string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, testReportDir+"/"+name+sourceExt, []byte("<jasperReport name=\""+name+"\"/>"), 0o644))
}
