// Package tool builds the argument vector for the external extraction
// tool. Arguments are always passed as a vector, never through a shell,
// so the url and flags cannot be reinterpreted.
package tool

import (
	"fmt"
	"os/exec"
	"sort"
)

// Invocation describes one tool run. URL is appended as the final
// vector element.
type Invocation struct {
	Options     map[string]map[string]any
	OutputDir   string
	CookiesPath string
	URL         string
}

// Args flattens the nested options map into flags in deterministic
// order: boolean true becomes a bare flag, any other non-nil scalar
// becomes flag plus stringified value, boolean false and nil are
// dropped.
func (inv Invocation) Args() []string {
	var args []string

	sections := make([]string, 0, len(inv.Options))
	for section := range inv.Options {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for _, section := range sections {
		settings := inv.Options[section]
		keys := make([]string, 0, len(settings))
		for key := range settings {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			switch v := settings[key].(type) {
			case nil:
			case bool:
				if v {
					args = append(args, "--"+key)
				}
			default:
				args = append(args, "--"+key, fmt.Sprint(v))
			}
		}
	}

	if inv.OutputDir != "" {
		args = append(args, "-D", inv.OutputDir)
	}
	args = append(args, "--verbose")
	if inv.CookiesPath != "" {
		args = append(args, "--cookies", inv.CookiesPath)
	}
	args = append(args, inv.URL)
	return args
}

// Lookup resolves the tool binary on PATH.
func Lookup(path string) (string, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("extraction tool %q not found: %w", path, err)
	}
	return resolved, nil
}
