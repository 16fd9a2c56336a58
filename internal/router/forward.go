package router

import (
	"fmt"
	"strings"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/envelope"
)

// receiptIntent maps a receipt status to the intent the router forwards it
// under (spec.md §4.5 step 6).
func receiptIntent(status string) string {
	if status == constants.StatusRetry || status == constants.StatusDeadletter {
		return constants.IntentAlert
	}
	return constants.IntentReceipt
}

// receiptRisk maps a forwarding intent to its risk level.
func receiptRisk(intent string) string {
	if intent == constants.IntentAlert {
		return "medium"
	}
	return "low"
}

// renderForward builds the body of a router-forwarded receipt notification:
// bullet metadata followed by the original receipt content verbatim in a
// fenced block (grounded on router.py's process_receipt "forwarded" text).
func renderForward(raw string, r envelope.Receipt, receiptPath string) string {
	var b strings.Builder
	b.WriteString("Receipt forwarded by router.\n\n")
	fmt.Fprintf(&b, "- message_id: %s\n", r.ID)
	fmt.Fprintf(&b, "- worker_role: %s\n", r.Role)
	fmt.Fprintf(&b, "- status: %s\n", r.Status)
	fmt.Fprintf(&b, "- codex_rc: %d\n", r.CodexRC)
	fmt.Fprintf(&b, "- request_from: %s\n", r.RequestFrom)
	fmt.Fprintf(&b, "- request_to: %s\n", r.RequestTo)
	fmt.Fprintf(&b, "- request_intent: %s\n", r.RequestIntent)
	fmt.Fprintf(&b, "- receipt_file: %s\n\n", receiptPath)
	b.WriteString("Receipt content (verbatim):\n```md\n")
	b.WriteString(strings.TrimRight(raw, "\n"))
	b.WriteString("\n```\n")
	return b.String()
}

// receiptTargets is the always-on forwarding target list: Lead, plus
// request_from when it is a distinct, valid role (spec.md §4.5 step 6).
func receiptTargets(roles []string, r envelope.Receipt) []string {
	var out []string
	if validRole(leadRole, roles) {
		out = append(out, leadRole)
	}
	if r.RequestFrom != "" && r.RequestFrom != leadRole && validRole(r.RequestFrom, roles) {
		out = append(out, r.RequestFrom)
	}
	return out
}
