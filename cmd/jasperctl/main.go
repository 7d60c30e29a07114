// Command jasperctl drives jasperstarter from the command line using the
// service configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"jasper_srv/internal/config"
	"jasper_srv/internal/di"
	"jasper_srv/internal/jasper"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    config.Config
	logger *logrus.Logger
	out    io.Writer

	binary      string
	resourceDir string
	reportDir   string
	verbose     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "jasperctl",
		Short:         "Compile, process and inspect JasperReports templates",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.binary, "binary", "", "jasperstarter executable (overrides jasper.binary)")
	flags.StringVar(&a.resourceDir, "resource-dir", "", "resource directory passed as -r")
	flags.StringVar(&a.reportDir, "report-dir", "", "directory holding .jrxml templates")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.compileCmd(),
		a.convertCmd(),
		a.paramsCmd(),
		a.generateCmd(),
		a.commandCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.binary != "" {
		cfg.Jasper.Binary = a.binary
	}
	if a.resourceDir != "" {
		cfg.Jasper.ResourceDir = a.resourceDir
	}
	if a.reportDir != "" {
		cfg.Jasper.ReportDir = a.reportDir
	}
	a.cfg = cfg

	a.logger = di.NewLogger(cfg)
	a.logger.SetOutput(os.Stderr)
	if a.verbose {
		a.logger.SetLevel(logrus.DebugLevel)
	}
	return nil
}

func (a *app) jasper() (*jasper.Jasper, error) {
	return di.NewJasper(a.cfg, a.logger)
}

func (a *app) run(ctx context.Context, j *jasper.Jasper, cmd jasper.Command) error {
	lines, err := j.Execute(ctx, cmd, a.cfg.Jasper.RunOptions())
	for _, line := range lines {
		fmt.Fprintln(a.out, line)
	}
	return err
}

type convertFlags struct {
	output        string
	formats       []string
	params        map[string]string
	useDatasource bool
}

func (f *convertFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output path without extension")
	cmd.Flags().StringSliceVarP(&f.formats, "format", "f", []string{"pdf"}, "output formats")
	cmd.Flags().StringToStringVarP(&f.params, "param", "P", nil, "report parameter name=value")
	cmd.Flags().BoolVar(&f.useDatasource, "datasource", true, "pass the configured datasource")
}

func (a *app) convertOptions(input string, f *convertFlags) jasper.ConvertOptions {
	opts := jasper.ConvertOptions{
		Input:      input,
		Output:     f.output,
		Formats:    f.formats,
		Parameters: f.params,
	}
	if f.useDatasource {
		opts.Connection = a.cfg.Datasource
	}
	return opts
}

func (a *app) compileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile <input.jrxml>",
		Short: "Compile a template into a .jasper file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.jasper()
			if err != nil {
				return err
			}
			c, err := j.Compile(args[0], output)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), j, c)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path without extension")
	return cmd
}

func (a *app) convertCmd() *cobra.Command {
	var f convertFlags
	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Process a template into one or more output formats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.jasper()
			if err != nil {
				return err
			}
			c, err := j.Convert(a.convertOptions(args[0], &f))
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), j, c)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) paramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params <report>",
		Short: "List the parameters a report declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.jasper()
			if err != nil {
				return err
			}
			r := di.NewReporter(a.cfg, j)
			params, err := r.Parameters(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, p := range params {
				fmt.Fprintf(a.out, "%s\t%s\t%s\n", p.Code, p.Name, p.Type)
			}
			return nil
		},
	}
}

func (a *app) generateCmd() *cobra.Command {
	var (
		format string
		output string
		params map[string]string
	)
	cmd := &cobra.Command{
		Use:   "generate <report | spec-json>",
		Short: "Generate a document from the report directory",
		Example: `  jasperctl generate invoice -P id=7 -o invoice.pdf
  jasperctl generate '{"invoice": ["invoice_lines"]}' -f xlsx -o invoice.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := parseSpec(args[0])
			if err != nil {
				return err
			}
			j, err := a.jasper()
			if err != nil {
				return err
			}
			document, err := di.NewReporter(a.cfg, j).Generate(cmd.Context(), spec, params, format)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = a.out.Write(document)
				return err
			}
			if err := os.WriteFile(output, document, 0o644); err != nil {
				return err
			}
			a.logger.WithField("file", output).Info("Document written")
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "pdf", "output format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")
	cmd.Flags().StringToStringVarP(&params, "param", "P", nil, "report parameter name=value")
	return cmd
}

// commandCmd prints invocations without running them
func (a *app) commandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Print the jasperstarter command line instead of running it",
	}

	var compileOutput string
	compile := &cobra.Command{
		Use:  "compile <input.jrxml>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.jasper()
			if err != nil {
				return err
			}
			return a.print(j.Compile(args[0], compileOutput))
		},
	}
	compile.Flags().StringVarP(&compileOutput, "output", "o", "", "output path without extension")

	var f convertFlags
	convert := &cobra.Command{
		Use:  "convert <input>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.jasper()
			if err != nil {
				return err
			}
			return a.print(j.Convert(a.convertOptions(args[0], &f)))
		},
	}
	f.register(convert)

	params := &cobra.Command{
		Use:  "params <input.jasper>",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := a.jasper()
			if err != nil {
				return err
			}
			return a.print(j.ListParameters(args[0]))
		},
	}

	cmd.AddCommand(compile, convert, params)
	return cmd
}

func (a *app) print(c jasper.Command, err error) error {
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, c.String())
	return err
}

// parseSpec accepts a bare report name or the JSON forms of a report spec
func parseSpec(arg string) (jasper.ReportSpec, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return jasper.ReportSpec{}, fmt.Errorf("%w: empty report", jasper.ErrInvalidInput)
	}
	switch arg[0] {
	case '{', '[', '"':
		var spec jasper.ReportSpec
		if err := json.Unmarshal([]byte(arg), &spec); err != nil {
			return jasper.ReportSpec{}, err
		}
		return spec, nil
	default:
		return jasper.Single(arg), nil
	}
}
