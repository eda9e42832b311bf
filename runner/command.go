package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"
)

// Command is a single external process invocation
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string // appended to the inherited environment
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String returns the command line as an operator would type it
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// TemplateData is the data an argv template is rendered with
type TemplateData struct {
	PackageName string
	ShortName   string
}

// CommandTemplate is an argv whose elements are text/template strings over TemplateData.
type CommandTemplate []string

// Render expands every element of the template. Elements that render to an empty
// string are kept, so a missing package name still reaches the external runner.
func (t CommandTemplate) Render(data TemplateData) (Command, error) {
	if len(t) == 0 {
		return Command{}, errors.New("command template is empty")
	}

	argv := make([]string, 0, len(t))
	for i, elem := range t {
		if !strings.Contains(elem, "{{") {
			argv = append(argv, elem)
			continue
		}
		tmpl, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(elem)
		if err != nil {
			return Command{}, fmt.Errorf("failed to parse argument %d (%q): %w", i, elem, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return Command{}, fmt.Errorf("failed to render argument %d (%q): %w", i, elem, err)
		}
		argv = append(argv, buf.String())
	}

	if argv[0] == "" {
		return Command{}, errors.New("command template renders an empty program name")
	}
	return Command{Name: argv[0], Args: argv[1:]}, nil
}

// ShortName strips the package prefix pattern from packageName.
// A nil prefix leaves the name unchanged.
func ShortName(packageName string, prefix *regexp.Regexp) string {
	if prefix == nil {
		return packageName
	}
	loc := prefix.FindStringIndex(packageName)
	if loc == nil || loc[0] != 0 {
		return packageName
	}
	return packageName[loc[1]:]
}
