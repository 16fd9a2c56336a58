package router

import (
	"regexp"
	"strings"
)

// Directive is one parsed `::bus-send{...}` instruction embedded in a
// receipt body (spec.md §4.5 step 4).
type Directive struct {
	To       []string
	Intent   string
	Risk     string
	Message  string
	Accept   []string
}

var directivePattern = regexp.MustCompile(`::bus-send\{([^}]*)\}`)
var attrPattern = regexp.MustCompile(`(\w+)\s*=\s*"([^"]*)"`)

// ParseDirectives scans body for every `::bus-send{...}` occurrence and
// returns the decoded directives in source order. Occurrences that lack a
// to= or an intent= attribute are skipped.
func ParseDirectives(body string) []Directive {
	var out []Directive
	for _, m := range directivePattern.FindAllStringSubmatch(body, -1) {
		attrs := map[string]string{}
		for _, a := range attrPattern.FindAllStringSubmatch(m[1], -1) {
			attrs[strings.ToLower(a[1])] = a[2]
		}
		to, ok := attrs["to"]
		intent, hasIntent := attrs["intent"]
		if !ok || !hasIntent {
			continue
		}
		d := Directive{
			To:      splitTargets(to),
			Intent:  intent,
			Risk:    attrs["risk"],
			Message: attrs["message"],
		}
		if accept, ok := attrs["accept"]; ok && accept != "" {
			d.Accept = splitList(accept, "|")
		}
		if d.Risk == "" {
			d.Risk = "low"
		}
		out = append(out, d)
	}
	return out
}

// splitTargets expands a to= attribute into a role list. "all" is returned
// as the single sentinel "all" for the caller to expand against the live
// role roster; "r1,r2" becomes ["r1", "r2"].
func splitTargets(to string) []string {
	return splitList(to, ",")
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandTargets resolves a directive's `to=` list into concrete role names.
// "all" expands to every known role except sender. Otherwise the named
// targets are returned as written, sender excluded — including any name
// that isn't a real role, so executeDirective's validRole check actually
// sees and alerts on it instead of having it silently disappear here.
func expandTargets(to []string, roles []string, sender string) []string {
	broadcast := false
	var explicit []string
	seen := map[string]bool{}
	for _, t := range to {
		if strings.EqualFold(t, "all") {
			broadcast = true
			continue
		}
		if t != "" && !seen[t] {
			seen[t] = true
			explicit = append(explicit, t)
		}
	}
	if broadcast {
		var out []string
		for _, r := range roles {
			if r != sender {
				out = append(out, r)
			}
		}
		return out
	}
	var out []string
	for _, t := range explicit {
		if t != sender {
			out = append(out, t)
		}
	}
	return out
}
