// Package envelope implements the minimal frontmatter grammar shared by
// bus messages and receipts (spec.md §4.2): a "---" delimited header of
// scalar keys and `  - "item"` list continuations, followed by a body.
//
// This intentionally does not pull in a YAML library (§9): the grammar is
// small, fixed, and easy to get exactly right by hand.
package envelope

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Header is a parsed frontmatter block. Values are either string or []string.
type Header map[string]any

// String returns the header's scalar value for key, or "" if absent or a list.
func (h Header) String(key string) string {
	v, ok := h[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// List returns the header's list value for key, or nil if absent or a scalar.
func (h Header) List(key string) []string {
	v, ok := h[key]
	if !ok {
		return nil
	}
	l, ok := v.([]string)
	if !ok {
		return nil
	}
	return l
}

var keyPattern = regexp.MustCompile(`^([A-Za-z0-9_\-]+):\s*(.*)$`)

// Parse splits raw text into a Header and the verbatim body. If the first
// non-empty line is not the opening delimiter, it returns an empty header
// and the raw text as the body unchanged.
func Parse(raw string) (Header, string) {
	lines := strings.Split(raw, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if len(lines)-start < 3 || strings.TrimSpace(lines[start]) != "---" {
		return Header{}, raw
	}

	h := Header{}
	currentKey := ""
	i := start + 1
	for ; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "---" {
			body := strings.Join(lines[i+1:], "\n")
			body = strings.TrimLeft(body, "\n")
			return h, body
		}
		if strings.HasPrefix(line, "  - ") && currentKey != "" {
			val := unquote(strings.TrimSpace(line[4:]))
			if existing, ok := h[currentKey].([]string); ok {
				h[currentKey] = append(existing, val)
			} else {
				h[currentKey] = []string{val}
			}
			continue
		}
		m := keyPattern.FindStringSubmatch(line)
		if m == nil {
			// A non-matching line outside a list continuation ends the
			// current list key without altering the header further.
			currentKey = ""
			continue
		}
		key, val := m[1], strings.TrimSpace(m[2])
		currentKey = key
		h[key] = unquote(val)
	}
	// Never reached the closing delimiter: treat as malformed, matching the
	// "first non-empty line is not the opening delimiter" rejection by
	// falling back to empty header + raw body.
	return Header{}, raw
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// Emit serializes a header (preserving insertion order from keyOrder) and
// body back into frontmatter text. Numeric/timestamp fields must already be
// strings by the time they reach Emit (§4.2).
func Emit(keyOrder []string, h Header, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range keyOrder {
		v, ok := h[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			fmt.Fprintf(&b, "%s: %s\n", k, val)
		case []string:
			fmt.Fprintf(&b, "%s:\n", k)
			for _, item := range val {
				fmt.Fprintf(&b, "  - %q\n", item)
			}
		}
	}
	b.WriteString("---\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}
	return b.String()
}

// AtomicWrite writes data to dir/name via a temp file + rename, matching
// the write discipline used for the task board and receipts (spec.md §4.2,
// §4.3).
func AtomicWrite(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("envelope: creating %s: %w", dir, err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp.%s.%d", name, os.Getpid()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("envelope: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("envelope: renaming into place: %w", err)
	}
	return nil
}

// FormatInt is a tiny helper so callers don't need strconv for the common
// case of stringifying an integer field (codex_rc).
func FormatInt(n int) string { return strconv.Itoa(n) }
