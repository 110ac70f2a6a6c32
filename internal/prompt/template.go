package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var varRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Vars is a map of variable names to values for template rendering.
type Vars map[string]string

// Placeholders every stage template must reference.
const (
	VarRequestType  = "request_type"
	VarSource       = "source"
	VarIssueContent = "issue_content"
	VarTraceID      = "trace_id"
	VarConstraints  = "constraints"
	VarPriority     = "priority"
	VarSeverity     = "severity"
)

// RequiredPlaceholders lists the placeholders a stage template must contain.
var RequiredPlaceholders = []string{
	VarRequestType,
	VarSource,
	VarIssueContent,
	VarTraceID,
	VarConstraints,
	VarPriority,
	VarSeverity,
}

// Render expands a template string with the given variables in a single pass.
// {variable} is replaced with its value; inserted values are never rescanned,
// so issue text containing braces cannot inject placeholders.
// Missing variables cause an error.
func Render(tmpl string, vars Vars) (string, error) {
	var missing []string
	expanded := varRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// Placeholders returns the distinct placeholder names in tmpl, sorted.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	for _, m := range varRe.FindAllStringSubmatch(tmpl, -1) {
		seen[m[1]] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkTemplate reports problems that would make a stage template unusable.
func checkTemplate(tmpl string) []string {
	if strings.TrimSpace(tmpl) == "" {
		return []string{"template is empty"}
	}
	var problems []string
	present := make(map[string]bool)
	for _, name := range Placeholders(tmpl) {
		present[name] = true
	}
	known := make(map[string]bool, len(RequiredPlaceholders))
	for _, name := range RequiredPlaceholders {
		known[name] = true
		if !present[name] {
			problems = append(problems, fmt.Sprintf("missing placeholder {%s}", name))
		}
	}
	for _, name := range Placeholders(tmpl) {
		if !known[name] {
			problems = append(problems, fmt.Sprintf("unknown placeholder {%s}", name))
		}
	}
	return problems
}
