package jasper

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	sourceExt   = ".jrxml"
	compiledExt = ".jasper"
)

// Compiler turns <dir>/<name>.jrxml into <dir>/<name>.jasper on first use.
// An existing .jasper file is reused as is; it is never compared with its source.
type Compiler struct {
	jasper *Jasper
	dir    string
	opts   RunOptions
	logger *logrus.Logger
}

// NewCompiler returns a compiler for templates stored in dir. Compilation always
// runs in the foreground, whatever opts.Background says.
func NewCompiler(j *Jasper, dir string, opts RunOptions) *Compiler {
	opts.Background = false
	return &Compiler{jasper: j, dir: dir, opts: opts, logger: j.logger}
}

// ValidateName rejects report names that would resolve outside the report
// directory: empty, absolute, "." or "..", or containing a path separator.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		filepath.IsAbs(name) || strings.ContainsAny(name, `/\`) || filepath.VolumeName(name) != "" {
		return fmt.Errorf("%w: invalid report name %q", ErrInvalidInput, name)
	}
	return nil
}

// ArtifactPath is where the compiled form of name lives.
func (c *Compiler) ArtifactPath(name string) string {
	return filepath.Join(c.dir, name+compiledExt)
}

// SourcePath is where the template of name lives.
func (c *Compiler) SourcePath(name string) string {
	return filepath.Join(c.dir, name+sourceExt)
}

// EnsureCompiled returns the artifact path for name, compiling it if absent.
func (c *Compiler) EnsureCompiled(ctx context.Context, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	artifact := c.ArtifactPath(name)
	logger := c.logger.WithFields(logrus.Fields{
		"report":   name,
		"artifact": artifact,
	})

	exists, err := afero.Exists(c.jasper.fs, artifact)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrIO, artifact, err)
	}
	if exists {
		logger.Debug("Compiled report found")
		return artifact, nil
	}

	cmd, err := c.jasper.Compile(c.SourcePath(name), filepath.Join(c.dir, name))
	if err != nil {
		return "", err
	}
	logger.Info("Compiling report")
	if _, err := c.jasper.Execute(ctx, cmd, c.opts); err != nil {
		logger.WithError(err).Error("Report compilation failed")
		return "", err
	}
	return artifact, nil
}
