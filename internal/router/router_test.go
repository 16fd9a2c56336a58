package router

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/meshbus/meshbus/internal/config"
	"github.com/meshbus/meshbus/internal/constants"
	"github.com/meshbus/meshbus/internal/envelope"
	"github.com/meshbus/meshbus/internal/session"
)

func setupSession(t *testing.T, roles ...string) string {
	t.Helper()
	root := t.TempDir()
	if err := session.EnsureDirs(root, roles); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return root
}

func writeReceipt(t *testing.T, root string, r envelope.Receipt) string {
	t.Helper()
	p := session.Resolve(root)
	if err := os.MkdirAll(p.Outbox, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(p.Outbox, r.FileName())
	if err := os.WriteFile(path, []byte(r.Render()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestRouter(root string) *Router {
	return New(root, config.Default(), log.New(os.Stderr, "", 0))
}

func TestOnceForwardsReceiptToLeadAndRequester(t *testing.T) {
	root := setupSession(t, "lead", "builder-a")
	writeReceipt(t, root, envelope.Receipt{
		ID: "20260101-000000-aaaaaaaa", Role: "builder-a", Thread: "t1",
		RequestFrom: "lead", RequestTo: "builder-a", RequestIntent: "implement",
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: "2026-01-01 00:00:00", Body: "finished",
	})

	r := newTestRouter(root)
	did, err := r.Once()
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if !did {
		t.Fatal("expected Once to report progress")
	}

	p := session.Resolve(root)
	leadEntries, _ := os.ReadDir(p.RoleInbox("lead"))
	if len(leadEntries) != 1 {
		t.Fatalf("expected one message forwarded to lead, got %d", len(leadEntries))
	}
	data, _ := os.ReadFile(filepath.Join(p.RoleInbox("lead"), leadEntries[0].Name()))
	msg := envelope.ParseMessage(string(data))
	if msg.Intent != constants.IntentReceipt {
		t.Fatalf("expected receipt intent, got %q", msg.Intent)
	}
	if !strings.Contains(msg.Body, "Receipt content (verbatim)") {
		t.Fatal("expected forwarded body to embed original receipt verbatim")
	}

	// request_from == "lead" == to-lead target, so builder-a should not
	// receive a second copy (request_from equals lead, the target is
	// already included).
	builderEntries, _ := os.ReadDir(p.RoleInbox("builder-a"))
	if len(builderEntries) != 0 {
		t.Fatalf("expected no message forwarded back to builder-a, got %d", len(builderEntries))
	}
}

func TestOnceIsIdempotentOnUnchangedReceipt(t *testing.T) {
	root := setupSession(t, "lead", "builder-a")
	writeReceipt(t, root, envelope.Receipt{
		ID: "20260101-000001-bbbbbbbb", Role: "builder-a", Thread: "t1",
		RequestFrom: "lead", RequestTo: "builder-a", RequestIntent: "implement",
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: "2026-01-01 00:00:00", Body: "finished",
	})

	r := newTestRouter(root)
	if _, err := r.Once(); err != nil {
		t.Fatalf("first Once: %v", err)
	}
	did, err := r.Once()
	if err != nil {
		t.Fatalf("second Once: %v", err)
	}
	if did {
		t.Fatal("expected second Once over an unchanged receipt to report no progress")
	}

	p := session.Resolve(root)
	leadEntries, _ := os.ReadDir(p.RoleInbox("lead"))
	if len(leadEntries) != 1 {
		t.Fatalf("expected exactly one forwarded message across both runs, got %d", len(leadEntries))
	}
}

func TestLoopPreventionSkipsRouterOriginatedReceipts(t *testing.T) {
	root := setupSession(t, "lead", "builder-a")
	writeReceipt(t, root, envelope.Receipt{
		ID: "20260101-000002-cccccccc", Role: "builder-a", Thread: "t1",
		RequestFrom: "router", RequestTo: "builder-a", RequestIntent: "receipt",
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: "2026-01-01 00:00:00", Body: "ok",
	})

	r := newTestRouter(root)
	did, err := r.Once()
	if err != nil {
		t.Fatalf("Once: %v", err)
	}
	if !did {
		t.Fatal("expected the hash sentinel write itself to count as progress")
	}

	p := session.Resolve(root)
	leadEntries, _ := os.ReadDir(p.RoleInbox("lead"))
	if len(leadEntries) != 0 {
		t.Fatalf("expected no forwarding for a router-originated receipt, got %d messages", len(leadEntries))
	}

	did2, err := r.Once()
	if err != nil {
		t.Fatalf("second Once: %v", err)
	}
	if did2 {
		t.Fatal("expected the already-processed sentinel to suppress further work")
	}
}

func TestDirectiveDispatchedToValidTargetWithAllowedIntent(t *testing.T) {
	root := setupSession(t, "lead", "builder-a", "reviewer")
	body := `All done. ::bus-send{to="reviewer" intent="review" risk="low" message="please look at this"}`
	writeReceipt(t, root, envelope.Receipt{
		ID: "20260101-000003-dddddddd", Role: "builder-a", Thread: "t1",
		RequestFrom: "lead", RequestTo: "builder-a", RequestIntent: "implement",
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: "2026-01-01 00:00:00", Body: body,
	})

	r := newTestRouter(root)
	if _, err := r.Once(); err != nil {
		t.Fatalf("Once: %v", err)
	}

	p := session.Resolve(root)
	entries, _ := os.ReadDir(p.RoleInbox("reviewer"))
	if len(entries) != 1 {
		t.Fatalf("expected one dispatched message to reviewer, got %d", len(entries))
	}
	data, _ := os.ReadFile(filepath.Join(p.RoleInbox("reviewer"), entries[0].Name()))
	msg := envelope.ParseMessage(string(data))
	if msg.Intent != "review" || msg.Body != "please look at this" {
		t.Fatalf("unexpected dispatched message: %+v", msg)
	}
}

func TestDirectiveWithDisallowedIntentAlertsLeadInsteadOfForwarding(t *testing.T) {
	root := setupSession(t, "lead", "builder-a", "reviewer")
	body := `::bus-send{to="reviewer" intent="bootstrap" message="try to re-bootstrap"}`
	writeReceipt(t, root, envelope.Receipt{
		ID: "20260101-000004-eeeeeeee", Role: "builder-a", Thread: "t1",
		RequestFrom: "lead", RequestTo: "builder-a", RequestIntent: "implement",
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: "2026-01-01 00:00:00", Body: body,
	})

	r := newTestRouter(root)
	if _, err := r.Once(); err != nil {
		t.Fatalf("Once: %v", err)
	}

	p := session.Resolve(root)
	reviewerEntries, _ := os.ReadDir(p.RoleInbox("reviewer"))
	if len(reviewerEntries) != 0 {
		t.Fatalf("expected disallowed directive not forwarded to reviewer, got %d", len(reviewerEntries))
	}

	leadEntries, _ := os.ReadDir(p.RoleInbox("lead"))
	var alerts int
	for _, e := range leadEntries {
		data, _ := os.ReadFile(filepath.Join(p.RoleInbox("lead"), e.Name()))
		msg := envelope.ParseMessage(string(data))
		if msg.Intent == constants.IntentAlert {
			alerts++
		}
	}
	if alerts == 0 {
		t.Fatal("expected an alert to lead for the disallowed directive")
	}
}

func TestDirectiveWithMixedValidAndInvalidTargetsAlertsOnlyForInvalid(t *testing.T) {
	root := setupSession(t, "lead", "builder-a", "reviewer")
	body := `::bus-send{to="reviewer,bogus" intent="review" risk="low" message="please look at this"}`
	writeReceipt(t, root, envelope.Receipt{
		ID: "20260101-000006-11111111", Role: "builder-a", Thread: "t1",
		RequestFrom: "lead", RequestTo: "builder-a", RequestIntent: "implement",
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: "2026-01-01 00:00:00", Body: body,
	})

	r := newTestRouter(root)
	if _, err := r.Once(); err != nil {
		t.Fatalf("Once: %v", err)
	}

	p := session.Resolve(root)
	reviewerEntries, _ := os.ReadDir(p.RoleInbox("reviewer"))
	if len(reviewerEntries) != 1 {
		t.Fatalf("expected the valid target to still be dispatched to, got %d", len(reviewerEntries))
	}

	leadEntries, _ := os.ReadDir(p.RoleInbox("lead"))
	var alerts int
	for _, e := range leadEntries {
		data, _ := os.ReadFile(filepath.Join(p.RoleInbox("lead"), e.Name()))
		msg := envelope.ParseMessage(string(data))
		if msg.Intent == constants.IntentAlert && strings.Contains(msg.Body, "bogus") {
			alerts++
		}
	}
	if alerts == 0 {
		t.Fatal("expected an alert to lead naming the unknown target \"bogus\"")
	}
}

func TestBroadcastDirectiveExpandsToAllRolesExceptSender(t *testing.T) {
	root := setupSession(t, "lead", "builder-a", "builder-b", "reviewer")
	body := `::bus-send{to="all" intent="info" message="heads up"}`
	writeReceipt(t, root, envelope.Receipt{
		ID: "20260101-000005-ffffffff", Role: "lead", Thread: "t1",
		RequestFrom: "", RequestTo: "", RequestIntent: "",
		Status: constants.StatusDone, CodexRC: 0, FinishedAt: "2026-01-01 00:00:00", Body: body,
	})

	r := newTestRouter(root)
	if _, err := r.Once(); err != nil {
		t.Fatalf("Once: %v", err)
	}

	p := session.Resolve(root)
	for _, role := range []string{"builder-a", "builder-b", "reviewer"} {
		entries, _ := os.ReadDir(p.RoleInbox(role))
		if len(entries) != 1 {
			t.Fatalf("expected broadcast message delivered to %s, got %d entries", role, len(entries))
		}
	}
	// Sender (lead) must not receive its own broadcast, but it does still
	// receive the unconditional receipt forward from step 6.
	leadEntries, _ := os.ReadDir(p.RoleInbox("lead"))
	for _, e := range leadEntries {
		data, _ := os.ReadFile(filepath.Join(p.RoleInbox("lead"), e.Name()))
		msg := envelope.ParseMessage(string(data))
		if msg.Intent == "info" {
			t.Fatal("sender must be excluded from its own broadcast")
		}
	}
}
