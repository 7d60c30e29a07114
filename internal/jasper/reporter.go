package jasper

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	tempDirName    = "tmp"
	tempDirPerm    = 0o755
	tempCopyPerm   = 0o666
	sharedCopyPerm = 0o775
)

// Reporter generates documents from the templates in one report directory.
type Reporter struct {
	jasper   *Jasper
	compiler *Compiler
	dir      string
	opts     RunOptions
	logger   *logrus.Logger
	newID    func() (string, error)

	mu         sync.RWMutex
	connection Connection
}

// ReporterOption customises a Reporter.
type ReporterOption func(*Reporter)

// WithRunOptions sets how jasperstarter is invoked. Defaults to DefaultRunOptions.
func WithRunOptions(opts RunOptions) ReporterOption {
	return func(r *Reporter) { r.opts = opts }
}

// WithConnection sets the initial datasource.
func WithConnection(c Connection) ReporterOption {
	return func(r *Reporter) { r.connection = c }
}

// NewReporter returns a Reporter for templates stored in dir.
func NewReporter(j *Jasper, dir string, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		jasper: j,
		dir:    dir,
		opts:   DefaultRunOptions,
		logger: j.logger,
		newID:  newTempID,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.compiler = NewCompiler(j, dir, r.opts)
	return r
}

// Jasper returns the underlying client.
func (r *Reporter) Jasper() *Jasper {
	return r.jasper
}

// Compiler returns the compiler bound to the report directory.
func (r *Reporter) Compiler() *Compiler {
	return r.compiler
}

// ReportDirectory returns the directory holding templates and compiled reports.
func (r *Reporter) ReportDirectory() string {
	return r.dir
}

// SetConnection replaces the datasource used by subsequent Generate calls.
func (r *Reporter) SetConnection(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connection = c
}

// Connection returns the current datasource.
func (r *Reporter) Connection() Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connection
}

// Generate compiles what spec needs, renders its main report to format and
// returns the document. Temporary files are removed before it returns. When the
// report fails because parameters are missing the error is a *MissingParametersError.
func (r *Reporter) Generate(ctx context.Context, spec ReportSpec, params map[string]string, format string) (out []byte, err error) {
	if !ValidFormat(format) {
		return nil, invalidFormatError(format)
	}
	steps, err := spec.plan()
	if err != nil {
		return nil, err
	}

	logger := r.logger.WithFields(logrus.Fields{
		"report": spec.Main(),
		"format": format,
	})
	start := time.Now()

	var main string
	for _, step := range steps {
		if _, err := r.compiler.EnsureCompiled(ctx, step.name); err != nil {
			return nil, err
		}
		if step.main {
			main = step.name
		}
	}

	fsys := r.jasper.fs
	tmpDir := filepath.Join(r.dir, tempDirName)
	if err := fsys.MkdirAll(tmpDir, tempDirPerm); err != nil {
		return nil, fmt.Errorf("%w: failed to create temporary folder %s: %v", ErrIO, tmpDir, err)
	}
	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("%w: temporary file name: %v", ErrIO, err)
	}

	base := filepath.Join(tmpDir, id)
	copyPath := base + compiledExt
	outputPath := base + "." + format

	defer func() {
		cleanupErr := r.cleanup(copyPath, outputPath)
		if cleanupErr == nil {
			return
		}
		if err != nil {
			logger.WithError(cleanupErr).Error("Failed to remove temporary report files")
			return
		}
		out, err = nil, cleanupErr
	}()

	artifact := r.compiler.ArtifactPath(main)
	if err := copyFile(fsys, artifact, copyPath, tempCopyPerm); err != nil {
		return nil, fmt.Errorf("%w: copy %s: %v", ErrIO, artifact, err)
	}
	if err := fsys.Chmod(artifact, sharedCopyPerm); err != nil {
		logger.WithError(err).Warn("Failed to relax compiled report permissions")
	}

	cmd, err := r.jasper.Convert(ConvertOptions{
		Input:      copyPath,
		Output:     base,
		Formats:    []string{format},
		Parameters: params,
		Connection: r.Connection(),
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.jasper.Execute(ctx, cmd, r.opts); err != nil {
		return nil, r.explain(ctx, logger, copyPath, params, err)
	}

	out, err = afero.ReadFile(fsys, outputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to generate the report with name %q", ErrIO, main)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, outputPath, err)
	}

	logger.WithFields(logrus.Fields{
		"size":     len(out),
		"duration": time.Since(start),
	}).Info("Report generated")
	return out, nil
}

// Parameters returns the parameters declared by the named report, compiling it if needed.
func (r *Reporter) Parameters(ctx context.Context, name string) ([]ParameterInfo, error) {
	artifact, err := r.compiler.EnsureCompiled(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.listParameters(ctx, artifact)
}

func (r *Reporter) listParameters(ctx context.Context, compiled string) ([]ParameterInfo, error) {
	cmd, err := r.jasper.ListParameters(compiled)
	if err != nil {
		return nil, err
	}
	opts := r.opts
	opts.Background = false
	lines, err := r.jasper.Execute(ctx, cmd, opts)
	if err != nil {
		return nil, err
	}
	return ParseParameters(lines), nil
}

// explain turns a convert failure caused by unsupplied parameters into a
// *MissingParametersError. Any other failure is returned unchanged.
func (r *Reporter) explain(ctx context.Context, logger *logrus.Entry, compiled string, supplied map[string]string, cause error) error {
	if classifyConvertFailure(cause) != outcomeMissingParameters {
		return cause
	}

	logger.WithError(cause).Warn("Report expression failed, checking declared parameters")
	declared, err := r.listParameters(ctx, compiled)
	if err != nil {
		logger.WithError(err).Error("Failed to list report parameters")
		return cause
	}

	report, missing := describeParameters(declared, supplied)
	if len(missing) == 0 {
		return cause
	}
	return &MissingParametersError{
		Parameters: declared,
		Missing:    missing,
		Report:     report,
		Cause:      cause,
	}
}

func (r *Reporter) cleanup(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := r.jasper.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: cleanup: %w", ErrIO, errors.Join(errs...))
}

// newTempID returns an md5 hex digest of 64 base64-encoded random bytes.
func newTempID() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(base64.StdEncoding.EncodeToString(b)))
	return hex.EncodeToString(sum[:]), nil
}

func copyFile(fsys afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return fsys.Chmod(dst, perm)
}
