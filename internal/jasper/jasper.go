// Package jasper drives the jasperstarter command-line tool: it builds compile,
// process and list_parameters invocations, runs them, and orchestrates report
// generation with a per-call temporary copy of the compiled report.
package jasper

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultBinary is looked up on PATH when no executable is configured.
const DefaultBinary = "jasperstarter"

// Options configures a Jasper client.
type Options struct {
	// Binary is the jasperstarter executable. Empty means DefaultBinary on PATH.
	Binary string
	// ResourceDir is passed as -r to every process call. Empty means the working directory.
	ResourceDir string
	Runner      Runner
	Fs          afero.Fs
	Logger      *logrus.Logger
}

// Jasper builds and executes jasperstarter commands.
type Jasper struct {
	executable  string
	resourceDir string
	runner      Runner
	fs          afero.Fs
	logger      *logrus.Logger
	windows     bool
}

// ConvertOptions are the inputs of a process (convert) command.
type ConvertOptions struct {
	Input string
	// Output is the target path without extension; jasperstarter appends the format.
	Output     string
	Formats    []string
	Parameters map[string]string
	Connection Connection
}

// New creates a client. A non-empty ResourceDir must exist.
func New(opts Options) (*Jasper, error) {
	j := &Jasper{
		runner:  opts.Runner,
		fs:      opts.Fs,
		logger:  opts.Logger,
		windows: runtime.GOOS == "windows",
	}
	if j.fs == nil {
		j.fs = afero.NewOsFs()
	}
	if j.logger == nil {
		j.logger = logrus.StandardLogger()
	}
	if j.runner == nil {
		j.runner = NewExecRunner(j.logger)
	}

	resourceDir := opts.ResourceDir
	if resourceDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResourceDir, err)
		}
		resourceDir = wd
	} else if ok, _ := afero.Exists(j.fs, resourceDir); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResourceDir, resourceDir)
	}
	abs, err := filepath.Abs(resourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResourceDir, err)
	}
	j.resourceDir = abs

	binary := opts.Binary
	if binary == "" {
		found, err := exec.LookPath(DefaultBinary)
		if err != nil {
			return nil, fmt.Errorf("%w: jasperstarter executable not found on PATH", ErrNotFound)
		}
		binary = found
	}
	if _, err := j.SetBinary(binary); err != nil {
		return nil, err
	}
	return j, nil
}

// SetBinary points the client at another jasperstarter executable and returns
// its canonical path.
func (j *Jasper) SetBinary(path string) (string, error) {
	info, err := j.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: jasperstarter executable not found (%s)", ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	if !j.windows && info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%w: missing execution permission for file: %s", ErrPermissionDenied, path)
	}
	canonical, err := j.canonical(path)
	if err != nil {
		return "", err
	}
	j.executable = canonical
	return canonical, nil
}

// Binary returns the configured executable.
func (j *Jasper) Binary() string {
	return j.executable
}

// ResourceDirectory returns the directory passed as -r.
func (j *Jasper) ResourceDirectory() string {
	return j.resourceDir
}

// Compile builds `compile <input> [-o <output>]`.
func (j *Jasper) Compile(input, output string) (Command, error) {
	in, err := j.validate(input)
	if err != nil {
		return Command{}, err
	}
	args := []string{opCompile, in}
	if output != "" {
		out, err := filepath.Abs(output)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		args = append(args, "-o", out)
	}
	return j.command(args), nil
}

// Convert builds `process <input> [-o <output>] -f <formats> -r <dir> [-P ...] [-t ...]`.
// Formats default to pdf.
func (j *Jasper) Convert(opts ConvertOptions) (Command, error) {
	formats := opts.Formats
	if len(formats) == 0 {
		formats = []string{"pdf"}
	}
	for _, f := range formats {
		if !ValidFormat(f) {
			return Command{}, invalidFormatError(f)
		}
	}

	in, err := j.validate(opts.Input)
	if err != nil {
		return Command{}, err
	}

	args := []string{opProcess, in}
	if opts.Output != "" {
		out, err := filepath.Abs(opts.Output)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		args = append(args, "-o", out)
	}
	args = append(args, "-f")
	args = append(args, formats...)
	args = append(args, "-r", j.resourceDir)
	args = append(args, parameterArgs(opts.Parameters)...)
	args = append(args, opts.Connection.args()...)
	return j.command(args), nil
}

// ListParameters builds `list_parameters <input>`.
func (j *Jasper) ListParameters(input string) (Command, error) {
	in, err := j.validate(input)
	if err != nil {
		return Command{}, err
	}
	return j.command([]string{opListParameters, in}), nil
}

// Execute runs cmd and returns its output lines.
func (j *Jasper) Execute(ctx context.Context, cmd Command, opts RunOptions) ([]string, error) {
	logger := j.logger.WithFields(logrus.Fields{
		"operation":  cmd.Operation(),
		"background": opts.Background,
	})
	logger.WithField("command", cmd.String()).Debug("Running jasperstarter")

	start := time.Now()
	lines, err := j.runner.Run(ctx, cmd, opts)
	duration := time.Since(start)
	if err != nil {
		logger.WithError(err).WithField("duration", duration).Debug("jasperstarter failed")
		return lines, err
	}
	logger.WithField("duration", duration).Debug("jasperstarter finished")
	return lines, nil
}

func (j *Jasper) command(args []string) Command {
	return Command{Executable: j.executable, Args: args}
}

// validate checks that input names an existing file and returns its canonical path.
func (j *Jasper) validate(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("%w: no input file", ErrInvalidInput)
	}
	ok, err := afero.Exists(j.fs, input)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrIO, input, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: input file not found (%s)", ErrNotFound, input)
	}
	return j.canonical(input)
}

// canonical returns the absolute form of path with symlinks resolved. Filesystems
// that cannot read links (MemMapFs) only get the absolute path.
func (j *Jasper) canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var resolved string
	if _, ok := j.fs.(*afero.OsFs); ok {
		resolved, err = filepath.EvalSymlinks(abs)
	} else {
		resolved, err = resolveLinks(j.fs, abs)
	}
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %v", ErrIO, abs, err)
	}
	return resolved, nil
}

const maxLinkHops = 255

// resolveLinks walks abs one element at a time through the afero link
// interfaces, so wrappers such as ReadOnlyFs or CopyOnWriteFs over an OsFs
// resolve like the OS would.
func resolveLinks(fsys afero.Fs, abs string) (string, error) {
	lstater, ok := fsys.(afero.Lstater)
	if !ok {
		return abs, nil
	}
	reader, ok := fsys.(afero.LinkReader)
	if !ok {
		return abs, nil
	}

	sep := string(filepath.Separator)
	vol := filepath.VolumeName(abs)
	resolved := vol + sep
	pending := strings.Split(abs[len(vol):], sep)
	hops := 0

	for len(pending) > 0 {
		part := pending[0]
		pending = pending[1:]
		switch part {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, part)
		info, _, err := lstater.LstatIfPossible(next)
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		if hops++; hops > maxLinkHops {
			return "", fmt.Errorf("too many levels of symbolic links: %s", abs)
		}
		target, err := reader.ReadlinkIfPossible(next)
		if err != nil {
			if errors.Is(err, afero.ErrNoReadlink) {
				return abs, nil
			}
			return "", err
		}
		if filepath.IsAbs(target) {
			vol = filepath.VolumeName(target)
			resolved = vol + sep
			target = target[len(vol):]
		}
		pending = append(strings.Split(target, sep), pending...)
	}
	return resolved, nil
}
