package envelope

import (
	"strconv"
)

// Receipt is the typed view of a bus outbox entry (spec.md §3).
type Receipt struct {
	ID             string
	Role           string
	Thread         string
	RequestFrom    string
	RequestTo      string
	RequestIntent  string
	TaskID         string
	Status         string
	CodexRC        int
	FinishedAt     string
	Body           string
}

var receiptKeyOrder = []string{
	"id", "role", "thread", "request_from", "request_to", "request_intent",
	"task_id", "status", "codex_rc", "finished_at",
}

// ParseReceipt parses a receipt envelope.
func ParseReceipt(raw string) Receipt {
	h, body := Parse(raw)
	rc, _ := strconv.Atoi(h.String("codex_rc"))
	return Receipt{
		ID:            h.String("id"),
		Role:          h.String("role"),
		Thread:        h.String("thread"),
		RequestFrom:   h.String("request_from"),
		RequestTo:     h.String("request_to"),
		RequestIntent: h.String("request_intent"),
		TaskID:        h.String("task_id"),
		Status:        h.String("status"),
		CodexRC:       rc,
		FinishedAt:    h.String("finished_at"),
		Body:          body,
	}
}

// Render serializes the receipt back to envelope text.
func (r Receipt) Render() string {
	h := Header{
		"id":             r.ID,
		"role":           r.Role,
		"thread":         r.Thread,
		"request_from":   r.RequestFrom,
		"request_to":     r.RequestTo,
		"request_intent": r.RequestIntent,
		"status":         r.Status,
		"codex_rc":       strconv.Itoa(r.CodexRC),
		"finished_at":    r.FinishedAt,
	}
	if r.TaskID != "" {
		h["task_id"] = r.TaskID
	}
	return Emit(receiptKeyOrder, h, r.Body)
}

// FileName returns the canonical outbox file name for this receipt.
func (r Receipt) FileName() string {
	return r.ID + "." + r.Role + ".md"
}
