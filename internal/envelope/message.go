package envelope

// Message is the typed view of a bus inbox entry (spec.md §3).
type Message struct {
	ID         string
	From       string
	To         string
	Intent     string
	Thread     string
	Risk       string
	TaskID     string
	Acceptance []string
	Body       string
}

var messageKeyOrder = []string{"id", "from", "to", "intent", "thread", "risk", "task_id", "acceptance"}

// ParseMessage parses a message envelope. Parsing never fails: malformed
// input yields a Message with empty fields and the raw text as Body,
// mirroring the header/body split itself.
func ParseMessage(raw string) Message {
	h, body := Parse(raw)
	return Message{
		ID:         h.String("id"),
		From:       h.String("from"),
		To:         h.String("to"),
		Intent:     h.String("intent"),
		Thread:     h.String("thread"),
		Risk:       h.String("risk"),
		TaskID:     h.String("task_id"),
		Acceptance: h.List("acceptance"),
		Body:       body,
	}
}

// Render serializes the message back to envelope text.
func (m Message) Render() string {
	h := Header{
		"id":     m.ID,
		"from":   m.From,
		"to":     m.To,
		"intent": m.Intent,
		"thread": m.Thread,
		"risk":   m.Risk,
	}
	if m.TaskID != "" {
		h["task_id"] = m.TaskID
	}
	if len(m.Acceptance) > 0 {
		h["acceptance"] = m.Acceptance
	}
	return Emit(messageKeyOrder, h, m.Body)
}

// FileName returns the canonical inbox/archive/deadletter file name for
// this message.
func (m Message) FileName() string {
	return m.ID + ".md"
}
