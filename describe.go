package override

import (
	"fmt"
	"strings"
	"unicode"
)

// FeaturesDescription describes every feature, one line each, formatted as
// "Group → Feature Label [ON by override]".
func (r *Registry) FeaturesDescription() []string {
	return r.describe(func(*Feature) bool { return true })
}

// EnabledFeaturesDescription describes the features that are currently on.
func (r *Registry) EnabledFeaturesDescription() []string {
	return r.describe(func(f *Feature) bool { return f.Enabled() })
}

// DisabledFeaturesDescription describes the features that are currently off.
func (r *Registry) DisabledFeaturesDescription() []string {
	return r.describe(func(f *Feature) bool { return !f.Enabled() })
}

// OverriddenFeaturesDescription describes the features with a local override.
func (r *Registry) OverriddenFeaturesDescription() []string {
	return r.describe(func(f *Feature) bool { return f.Override() != Default })
}

func (r *Registry) describe(include func(*Feature) bool) []string {
	entries := r.snapshot()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !include(e.feature) {
			continue
		}
		line := describeEntry(e)
		if group := e.group(); group != "" {
			line = group + groupSeparator + line
		}
		out = append(out, line)
	}
	return out
}

func describeEntry(e entry) string {
	onOff := "OFF"
	if e.feature.Enabled() {
		onOff = "ON"
	}
	reason := "override"
	if e.feature.Override() == Default {
		reason = "default"
	}
	return fmt.Sprintf("%s [%s by %s]", unCamelCase(e.label), onOff, reason)
}

// unCamelCase turns identifiers such as "darkModeV2" or "HTTPCache" into
// "Dark Mode V2" and "HTTP Cache". Underscores, dashes and dots separate
// words too. Text that already has spaces keeps them.
func unCamelCase(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) == 0 {
		return ""
	}

	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	for i, r := range runes {
		switch {
		case r == ' ' || r == '_' || r == '-' || r == '.':
			flush()
			continue
		case i > 0 && len(current) > 0:
			prev := runes[i-1]
			var next rune
			if i+1 < len(runes) {
				next = runes[i+1]
			}
			switch {
			case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
				flush()
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && unicode.IsLower(next):
				flush()
			}
		}
		current = append(current, r)
	}
	flush()

	for i, word := range words {
		w := []rune(word)
		w[0] = unicode.ToUpper(w[0])
		words[i] = string(w)
	}
	return strings.Join(words, " ")
}

// lowerCamel lowercases the leading run of capitals, so "DarkMode" becomes
// "darkMode" and "HTTPCache" becomes "httpCache".
func lowerCamel(s string) string {
	runes := []rune(s)
	for i := range runes {
		if !unicode.IsUpper(runes[i]) {
			break
		}
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
