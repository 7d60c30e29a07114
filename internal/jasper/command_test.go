package jasper

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCommand(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	writeTemplate(t, fs, "main_report")

	cmd, err := j.Compile(testReportDir+"/main_report.jrxml", testReportDir+"/main_report")
	require.NoError(t, err)

	want := []string{testBinary, "compile", testReportDir + "/main_report.jrxml", "-o", testReportDir + "/main_report"}
	if diff := cmp.Diff(want, cmd.Argv()); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, cmd.String(), " compile ")
}

func TestCompileCommandWithoutOutput(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	writeTemplate(t, fs, "main_report")

	cmd, err := j.Compile(testReportDir+"/main_report.jrxml", "")
	require.NoError(t, err)
	assert.False(t, hasFlag(cmd.Args, "-o"))
}

func TestConvertCommandOrder(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	require.NoError(t, afero.WriteFile(fs, testReportDir+"/main_report.jasper", []byte("x"), 0o644))

	cmd, err := j.Convert(ConvertOptions{
		Input:      testReportDir + "/main_report.jasper",
		Output:     "/tmp/out",
		Formats:    []string{"pdf", "xlsx"},
		Parameters: map[string]string{"b": "2", "a": "1"},
	})
	require.NoError(t, err)

	want := []string{
		"process", testReportDir + "/main_report.jasper",
		"-o", "/tmp/out",
		"-f", "pdf", "xlsx",
		"-r", testResourceDir,
		"-P", "a=1", "b=2",
	}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertDefaultsToPDF(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	require.NoError(t, afero.WriteFile(fs, testReportDir+"/main_report.jasper", []byte("x"), 0o644))

	cmd, err := j.Convert(ConvertOptions{Input: testReportDir + "/main_report.jasper"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", flagValue(cmd.Args, "-f"))
	assert.False(t, hasFlag(cmd.Args, "-o"))
	assert.False(t, hasFlag(cmd.Args, "-P"))
	assert.False(t, hasFlag(cmd.Args, "-t"))
}

func TestConvertWithJSONDriverConnection(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	require.NoError(t, afero.WriteFile(fs, testReportDir+"/main_report.jasper", []byte("x"), 0o644))

	cmd, err := j.Convert(ConvertOptions{
		Input: testReportDir + "/main_report.jasper",
		Connection: Connection{
			Driver:    DriverJSON,
			DataFile:  "/srv/data/test.json",
			JSONQuery: "path.to.query",
		},
	})
	require.NoError(t, err)

	assert.Contains(t, cmd.String(), "-t json")
	assert.Equal(t, "/srv/data/test.json", flagValue(cmd.Args, "--data-file"))
	assert.Equal(t, "path.to.query", flagValue(cmd.Args, "--json-query"))
	for _, flag := range []string{"-u", "-p", "-H", "-n", "--db-port", "--db-driver", "--db-url", "--jdbc-dir", "--db-sid"} {
		assert.False(t, hasFlag(cmd.Args, flag), "unexpected %s", flag)
	}
}

func TestConvertWithDataFileAndGenericConnection(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	require.NoError(t, afero.WriteFile(fs, testReportDir+"/main_report.jasper", []byte("x"), 0o644))

	cmd, err := j.Convert(ConvertOptions{
		Input: testReportDir + "/main_report.jasper",
		Connection: Connection{
			Driver:     DriverGeneric,
			Password:   "ignored",
			DataFile:   "/srv/data/test.json",
			JSONQuery:  "dropped.for.generic",
			JDBCDriver: "com.drive.example.ExampleDriver",
			JDBCURL:    "jdbc:example://127.0.0.1/test",
			JDBCDir:    "/opt/jasperstarter/jdbc",
			DBSID:      "EXAMPLE",
		},
	})
	require.NoError(t, err)

	assert.Contains(t, cmd.String(), "-t generic")
	assert.Contains(t, cmd.String(), "--db-url jdbc:example://127.0.0.1/test")
	assert.Equal(t, "/srv/data/test.json", flagValue(cmd.Args, "--data-file"))
	assert.Equal(t, "com.drive.example.ExampleDriver", flagValue(cmd.Args, "--db-driver"))
	assert.Equal(t, "/opt/jasperstarter/jdbc", flagValue(cmd.Args, "--jdbc-dir"))
	assert.Equal(t, "EXAMPLE", flagValue(cmd.Args, "--db-sid"))
	assert.Equal(t, "ignored", flagValue(cmd.Args, "-p"))
	for _, flag := range []string{"--json-query", "-u", "-H", "-n", "--db-port"} {
		assert.False(t, hasFlag(cmd.Args, flag), "unexpected %s", flag)
	}
}

func TestConvertDatabaseConnectionOrder(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	require.NoError(t, afero.WriteFile(fs, testReportDir+"/main_report.jasper", []byte("x"), 0o644))

	cmd, err := j.Convert(ConvertOptions{
		Input: testReportDir + "/main_report.jasper",
		Connection: Connection{
			Driver:   "postgres",
			Host:     "db.local",
			Port:     "5432",
			Username: "report",
			Password: "secret",
			Database: "sales",
		},
	})
	require.NoError(t, err)

	want := []string{"-t", "postgres", "-u", "report", "-p", "secret", "-H", "db.local", "-n", "sales", "--db-port", "5432"}
	got := cmd.Args[len(cmd.Args)-len(want):]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("datasource clause mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertInvalidFormat(t *testing.T) {
	j, fs, runner := setupTestJasper(t)
	require.NoError(t, afero.WriteFile(fs, testReportDir+"/main_report.jasper", []byte("x"), 0o644))

	_, err := j.Convert(ConvertOptions{
		Input:   testReportDir + "/main_report.jasper",
		Formats: []string{"pdf", "pdfs"},
	})
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.Contains(t, err.Error(), "pdfs")

	// Format validation comes before input validation.
	_, err = j.Convert(ConvertOptions{Input: "/nowhere.jasper", Formats: []string{"doc"}})
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.Empty(t, runner.calls)
}

func TestInputValidation(t *testing.T) {
	j, _, runner := setupTestJasper(t)

	tests := []struct {
		name  string
		build func(string) error
	}{
		{"compile", func(p string) error { _, err := j.Compile(p, ""); return err }},
		{"convert", func(p string) error { _, err := j.Convert(ConvertOptions{Input: p}); return err }},
		{"list_parameters", func(p string) error { _, err := j.ListParameters(p); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build("")
			assert.ErrorIs(t, err, ErrInvalidInput)

			err = tt.build(testReportDir + "/inexistent.jrxml")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Contains(t, err.Error(), "input file not found")
		})
	}
	assert.Empty(t, runner.calls)
}

func TestCommandStringEscapesPaths(t *testing.T) {
	j, fs, _ := setupTestJasper(t)
	input := "/srv/my reports/weekly; rm -rf $HOME.jrxml"
	require.NoError(t, afero.WriteFile(fs, input, []byte("x"), 0o644))

	cmd, err := j.Compile(input, "/srv/my reports/weekly")
	require.NoError(t, err)

	words, err := shellquote.Split(cmd.String())
	require.NoError(t, err)
	if diff := cmp.Diff(cmd.Argv(), words); diff != "" {
		t.Fatalf("escaped command does not split back into its arguments (-want +got):\n%s", diff)
	}
}

func TestSetBinary(t *testing.T) {
	j, fs, _ := setupTestJasper(t)

	_, err := j.SetBinary("./invalid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "executable not found")
	assert.Equal(t, testBinary, j.Binary())

	if runtime.GOOS != "windows" {
		require.NoError(t, afero.WriteFile(fs, "/opt/other/jasperstarter", []byte("x"), 0o600))
		_, err = j.SetBinary("/opt/other/jasperstarter")
		assert.ErrorIs(t, err, ErrPermissionDenied)
	}

	require.NoError(t, afero.WriteFile(fs, "/opt/new/jasperstarter", []byte("x"), 0o755))
	path, err := j.SetBinary("/opt/new/jasperstarter")
	require.NoError(t, err)
	assert.Equal(t, "/opt/new/jasperstarter", path)
	assert.Equal(t, path, j.Binary())
}

func TestNewWithResourceDirectory(t *testing.T) {
	j, _, _ := setupTestJasper(t)
	assert.Equal(t, testResourceDir, j.ResourceDirectory())

	_, err := New(Options{
		Binary:      testBinary,
		ResourceDir: "/srv/invalid",
		Runner:      &fakeRunner{},
		Fs:          afero.NewMemMapFs(),
	})
	assert.ErrorIs(t, err, ErrInvalidResourceDir)
}

func TestFormats(t *testing.T) {
	for _, f := range []string{"pdf", "rtf", "xls", "xlsx", "docx", "odt", "ods", "pptx", "csv", "html", "xhtml", "xml", "jrprint"} {
		assert.True(t, ValidFormat(f), f)
	}
	for _, f := range []string{"", "PDF", "doc", "pdfs", "png"} {
		assert.False(t, ValidFormat(f), f)
	}

	list := Formats()
	list[0] = "mutated"
	assert.True(t, ValidFormat("pdf"))
}

func TestCanonicalResolvesLinksOnWrappedOsFs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need extra privileges on windows")
	}
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "real", "reports"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real", "reports", "main_report.jrxml"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real"), filepath.Join(dir, "abs")))
	require.NoError(t, os.Symlink("real/reports", filepath.Join(dir, "rel")))

	want, err := filepath.EvalSymlinks(filepath.Join(dir, "real", "reports", "main_report.jrxml"))
	require.NoError(t, err)

	filesystems := map[string]afero.Fs{
		"os":            afero.NewOsFs(),
		"read only":     afero.NewReadOnlyFs(afero.NewOsFs()),
		"copy on write": afero.NewCopyOnWriteFs(afero.NewOsFs(), afero.NewMemMapFs()),
	}
	inputs := []string{
		filepath.Join(dir, "abs", "reports", "main_report.jrxml"),
		filepath.Join(dir, "rel", "main_report.jrxml"),
	}
	for name, fsys := range filesystems {
		t.Run(name, func(t *testing.T) {
			j := &Jasper{fs: fsys}
			for _, input := range inputs {
				got, err := j.canonical(input)
				require.NoError(t, err)
				assert.Equal(t, want, got, input)
			}
		})
	}
}

func TestCanonicalWithoutLinkSupport(t *testing.T) {
	j := &Jasper{fs: afero.NewMemMapFs()}
	got, err := j.canonical("/srv/reports/../reports/main_report.jrxml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/srv/reports/main_report.jrxml"), got)

	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/srv/reports/main_report.jrxml", []byte("x"), 0o644))
	j = &Jasper{fs: afero.NewReadOnlyFs(mem)}
	got, err = j.canonical("/srv/reports/main_report.jrxml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/srv/reports/main_report.jrxml"), got)

	_, err = j.canonical("/srv/reports/missing.jrxml")
	assert.ErrorIs(t, err, ErrIO)
}
