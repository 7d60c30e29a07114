package jasper

import (
	"slices"
	"sort"

	"github.com/kballard/go-shellquote"
)

// Command is one jasperstarter invocation as an ordered argument list.
// It is only turned into a string by String, which escapes every argument.
type Command struct {
	Executable string
	Args       []string
}

// String returns the shell-escaped command line.
func (c Command) String() string {
	return shellquote.Join(c.Argv()...)
}

// Argv returns the executable followed by its arguments.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Executable)
	return append(argv, c.Args...)
}

// Operation returns the jasperstarter sub-command (compile, process, list_parameters).
func (c Command) Operation() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

const (
	opCompile        = "compile"
	opProcess        = "process"
	opListParameters = "list_parameters"

	// DriverJSON selects the flat-file json datasource of jasperstarter.
	DriverJSON = "json"
	// DriverGeneric selects a JDBC datasource configured through --db-driver/--db-url.
	DriverGeneric = "generic"
)

var formats = []string{
	"pdf", "rtf", "xls", "xlsx", "docx", "odt", "ods",
	"pptx", "csv", "html", "xhtml", "xml", "jrprint",
}

// Formats returns the output formats accepted by Convert.
func Formats() []string {
	return slices.Clone(formats)
}

// ValidFormat reports whether format is one of Formats.
func ValidFormat(format string) bool {
	return slices.Contains(formats, format)
}

// Connection describes the datasource handed to the process step.
// Empty fields are never emitted.
type Connection struct {
	Driver     string `json:"driver" mapstructure:"driver" yaml:"driver"`
	Host       string `json:"host,omitempty" mapstructure:"host" yaml:"host"`
	Port       string `json:"port,omitempty" mapstructure:"port" yaml:"port"`
	Username   string `json:"username,omitempty" mapstructure:"username" yaml:"username"`
	Password   string `json:"-" mapstructure:"password" yaml:"password"`
	Database   string `json:"database,omitempty" mapstructure:"database" yaml:"database"`
	JDBCDriver string `json:"jdbc_driver,omitempty" mapstructure:"jdbc_driver" yaml:"jdbc_driver"`
	JDBCURL    string `json:"jdbc_url,omitempty" mapstructure:"jdbc_url" yaml:"jdbc_url"`
	JDBCDir    string `json:"jdbc_dir,omitempty" mapstructure:"jdbc_dir" yaml:"jdbc_dir"`
	DataFile   string `json:"data_file,omitempty" mapstructure:"data_file" yaml:"data_file"`
	JSONQuery  string `json:"json_query,omitempty" mapstructure:"json_query" yaml:"json_query"`
	DBSID      string `json:"db_sid,omitempty" mapstructure:"db_sid" yaml:"db_sid"`
}

// IsZero reports whether no driver is configured.
func (c Connection) IsZero() bool {
	return c.Driver == ""
}

func (c Connection) args() []string {
	if c.Driver == "" {
		return nil
	}
	args := []string{"-t", c.Driver}
	args = appendFlag(args, "--data-file", c.DataFile)
	if c.Driver == DriverJSON {
		args = appendFlag(args, "--json-query", c.JSONQuery)
	}
	args = appendFlag(args, "-u", c.Username)
	args = appendFlag(args, "-p", c.Password)
	args = appendFlag(args, "-H", c.Host)
	args = appendFlag(args, "-n", c.Database)
	args = appendFlag(args, "--db-port", c.Port)
	args = appendFlag(args, "--db-driver", c.JDBCDriver)
	args = appendFlag(args, "--db-url", c.JDBCURL)
	args = appendFlag(args, "--jdbc-dir", c.JDBCDir)
	args = appendFlag(args, "--db-sid", c.DBSID)
	return args
}

func appendFlag(args []string, flag, value string) []string {
	if value == "" {
		return args
	}
	return append(args, flag, value)
}

// parameterArgs renders -P k=v... in key order.
func parameterArgs(params map[string]string) []string {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)+1)
	args = append(args, "-P")
	for _, k := range keys {
		args = append(args, k+"="+params[k])
	}
	return args
}
