package envelope

import (
	"reflect"
	"testing"
)

func TestParseScalarAndList(t *testing.T) {
	raw := `---
id: m1
from: lead
to: builder-a
intent: implement
thread: "sess1"
risk: low
task_id: T1
acceptance:
  - "prints hello"
  - "exits zero"
---

do the thing
`
	h, body := Parse(raw)
	if h.String("id") != "m1" || h.String("thread") != "sess1" {
		t.Fatalf("unexpected scalars: %+v", h)
	}
	want := []string{"prints hello", "exits zero"}
	if got := h.List("acceptance"); !reflect.DeepEqual(got, want) {
		t.Fatalf("acceptance = %v, want %v", got, want)
	}
	if body != "do the thing\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestParseRejectsMissingDelimiter(t *testing.T) {
	raw := "just a body\nwith no frontmatter\n"
	h, body := Parse(raw)
	if len(h) != 0 {
		t.Fatalf("expected empty header, got %+v", h)
	}
	if body != raw {
		t.Fatalf("body should be raw text verbatim")
	}
}

func TestListEndedByInterleavedKey(t *testing.T) {
	raw := `---
acceptance:
  - "a"
risk: low
  - "b"
---

body
`
	h, _ := Parse(raw)
	if got := h.List("acceptance"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("acceptance = %v, want [a]", got)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		ID:         "m1",
		From:       "lead",
		To:         "builder-a",
		Intent:     "implement",
		Thread:     "sess1",
		Risk:       "low",
		TaskID:     "T1",
		Acceptance: []string{"prints hello", "handles edge case"},
		Body:       "please implement the greeting",
	}
	raw := m.Render()
	got := ParseMessage(raw)
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, m)
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	r := Receipt{
		ID:            "m1",
		Role:          "builder-a",
		Thread:        "sess1",
		RequestFrom:   "lead",
		RequestTo:     "builder-a",
		RequestIntent: "implement",
		TaskID:        "T1",
		Status:        "done",
		CodexRC:       0,
		FinishedAt:    "2026-07-30 10:00:00",
		Body:          "all done",
	}
	raw := r.Render()
	got := ParseReceipt(raw)
	if got != r {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, r)
	}
}
