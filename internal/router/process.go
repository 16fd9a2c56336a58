package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/envelope"
)

// processReceipt implements spec.md §4.5 steps 1-7 for one outbox file.
func (r *Router) processReceipt(path string, roles []string) (bool, error) {
	name := filepath.Base(path)
	r.ops.record("read", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if qerr := quarantineReceipt(r.paths, path, err); qerr != nil {
			return false, fmt.Errorf("quarantining unreadable receipt %s: %w", name, qerr)
		}
		return true, nil
	}

	hash := sha256Hex(data)
	if alreadyProcessed(r.paths, name, hash) {
		return false, nil
	}

	raw := string(data)
	rec := envelope.ParseReceipt(raw)

	if rec.RequestFrom == "router" {
		// Loop prevention: never re-forward a router-originated message's
		// own receipt.
		return true, markProcessed(r.paths, name, hash)
	}

	for _, d := range ParseDirectives(rec.Body) {
		r.executeDirective(d, rec, roles)
	}

	for _, target := range receiptTargets(roles, rec) {
		r.enqueue(target, "router", receiptIntent(rec.Status), rec.Thread, receiptRisk(receiptIntent(rec.Status)), renderForward(raw, rec, path))
	}

	return true, markProcessed(r.paths, name, hash)
}

// executeDirective applies capability gating to one `::bus-send` directive
// and either forwards it or alerts Lead about the rejection (spec.md §4.5
// step 5).
func (r *Router) executeDirective(d Directive, rec envelope.Receipt, roles []string) {
	ok, reason := checkCapability(rec.Role, d.Intent)
	if !ok {
		r.enqueue(leadRole, "router", constants.IntentAlert, rec.Thread, "medium",
			fmt.Sprintf("Directive rejected from role %q: %s\n\nOriginal message:\n%s", rec.Role, reason, d.Message))
		return
	}

	targets := expandTargets(d.To, roles, rec.Role)
	if len(targets) == 0 {
		r.enqueue(leadRole, "router", constants.IntentAlert, rec.Thread, "medium",
			fmt.Sprintf("Directive from role %q names no valid target(s) in %q", rec.Role, strings.Join(d.To, ",")))
		return
	}

	for _, t := range targets {
		if !validRole(t, roles) {
			r.enqueue(leadRole, "router", constants.IntentAlert, rec.Thread, "medium",
				fmt.Sprintf("Directive from role %q names unknown target %q", rec.Role, t))
			continue
		}
		r.enqueue(t, rec.Role, d.Intent, rec.Thread, d.Risk, d.Message)
	}
}

// enqueue writes a synthesized message into toRole's inbox.
func (r *Router) enqueue(toRole, fromRole, intent, thread, risk, body string) {
	if err := os.MkdirAll(r.paths.RoleInbox(toRole), 0o755); err != nil {
		r.Logger.Printf("router: creating inbox for %s: %v", toRole, err)
		return
	}
	msg := envelope.Message{
		ID:     newRouterMessageID(),
		From:   fromRole,
		To:     toRole,
		Intent: intent,
		Thread: thread,
		Risk:   risk,
		Body:   body,
	}
	path := filepath.Join(r.paths.RoleInbox(toRole), msg.FileName())
	if err := os.WriteFile(path, []byte(msg.Render()), 0o644); err != nil {
		if probeGlobalLockCorruption(path) {
			if qerr := quarantineGlobalLock(r.paths, filepath.Dir(path), r.ops); qerr != nil {
				r.Logger.Printf("router: quarantining corrupt lock dir: %v", qerr)
			}
			r.alertLockCorruption(thread, path, err)
			return
		}
		r.Logger.Printf("router: writing message to %s: %v", toRole, err)
	}
	r.ops.record("write", path)
}

func (r *Router) alertLockCorruption(thread, path string, cause error) {
	body := fmt.Sprintf("Quarantined a corrupt global-lock directory near %s: %v\n\nRecent filesystem operations:\n%s",
		path, cause, r.ops.dump())
	if err := os.MkdirAll(r.paths.RoleInbox(leadRole), 0o755); err != nil {
		r.Logger.Printf("router: %v", err)
		return
	}
	msg := envelope.Message{
		ID: newRouterMessageID(), From: "router", To: leadRole,
		Intent: constants.IntentAlert, Thread: thread, Risk: "medium", Body: "[warn] " + body,
	}
	_ = os.WriteFile(filepath.Join(r.paths.RoleInbox(leadRole), msg.FileName()), []byte(msg.Render()), 0o644)
}
