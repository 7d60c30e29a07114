package jasper

import (
	"regexp"
	"strings"
)

// missingExpressionMarker appears in jasperstarter's message when a report
// expression cannot be evaluated, typically because a parameter was not supplied.
const missingExpressionMarker = "expression for source text"

// parameterLine splits a list_parameters line into type code, name and type.
var parameterLine = regexp.MustCompile(`(?i)([a-z]{0,2}) (.*) (.*)`)

// ParameterInfo is one parameter declared by a compiled report.
type ParameterInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ParseParameters parses list_parameters output. Lines that do not match the
// three-column layout are skipped.
func ParseParameters(lines []string) []ParameterInfo {
	params := make([]ParameterInfo, 0, len(lines))
	for _, line := range lines {
		m := parameterLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		params = append(params, ParameterInfo{
			Code: m[1],
			Name: strings.TrimSpace(m[2]),
			Type: m[3],
		})
	}
	return params
}

// describeParameters renders one line per declared parameter, showing the
// supplied value where there is one, and returns the names that were not supplied.
func describeParameters(declared []ParameterInfo, supplied map[string]string) (string, []string) {
	var missing []string
	lines := make([]string, 0, len(declared))
	for _, p := range declared {
		if v, ok := supplied[p.Name]; ok {
			lines = append(lines, "- "+p.Name+" : "+p.Type+" ("+v+")")
			continue
		}
		lines = append(lines, "- "+p.Name+" : "+p.Type)
		missing = append(missing, p.Name)
	}
	return strings.Join(lines, "\n"), missing
}

type convertOutcome int

const (
	outcomeFailed convertOutcome = iota
	outcomeMissingParameters
)

// classifyConvertFailure decides whether a failed process call should go
// through missing-parameter diagnosis.
func classifyConvertFailure(err error) convertOutcome {
	if err != nil && strings.Contains(err.Error(), missingExpressionMarker) {
		return outcomeMissingParameters
	}
	return outcomeFailed
}
