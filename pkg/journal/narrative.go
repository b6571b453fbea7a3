package journal

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// NarrativeError reports placeholders that have no matching variable, or a
// template identifier with no template behind it. Unresolved placeholders
// are fatal, never silently substituted with an empty string.
type NarrativeError struct {
	TemplateID   string
	Missing      bool
	Placeholders []string
}

func (e *NarrativeError) Error() string {
	if e.Missing {
		return fmt.Sprintf("narrative template %q not found", e.TemplateID)
	}
	return fmt.Sprintf("narrative template %q: unresolved placeholders %s",
		e.TemplateID, strings.Join(e.Placeholders, ", "))
}

// resolveNarrative substitutes {name} placeholders from the variable map.
// All unresolved placeholders are collected before failing.
func resolveNarrative(templateID, template string, vars map[string]string) (string, error) {
	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		unresolved = append(unresolved, name)
		return match
	})
	if len(unresolved) > 0 {
		return "", &NarrativeError{TemplateID: templateID, Placeholders: unresolved}
	}
	return out, nil
}
