package taskboard

import "strings"

// Reason is the small outcome-variant set returned alongside ok/task from
// every board operation (§9 re-architecture guidance: typed result instead
// of exception-for-control-flow). DepsBlocked carries the missing
// dependency ids as a comma-joined suffix, e.g. "deps_blocked:T1,T2".
type Reason string

const (
	ReasonOK                   Reason = "ok"
	ReasonNotFound             Reason = "not_found"
	ReasonInvalidStatus        Reason = "invalid_status"
	ReasonCompleted            Reason = "completed"
	ReasonFailed               Reason = "failed"
	ReasonClaimedByOther       Reason = "claimed_by_other"
	ReasonOwnerMismatch        Reason = "owner_mismatch"
	ReasonAlreadyClaimed       Reason = "already_claimed"
	ReasonClaimed              Reason = "claimed"
	ReasonNoneAvailable        Reason = "none_available"
	ReasonAlreadyCompleted     Reason = "already_completed"
	ReasonNotInProgress        Reason = "not_in_progress"
	ReasonUpdated              Reason = "updated"
	ReasonAlreadyDispatched     Reason = "already_dispatched"
	ReasonAlreadyDispatchedSame Reason = "already_dispatched_same"
	depsBlockedPrefix           = "deps_blocked:"
)

// DepsBlocked builds the deps_blocked:<csv> reason.
func DepsBlocked(missing []string) Reason {
	return Reason(depsBlockedPrefix + strings.Join(missing, ","))
}

// IsDepsBlocked reports whether r is a deps_blocked reason and returns the
// missing task ids.
func IsDepsBlocked(r Reason) (missing []string, ok bool) {
	s := string(r)
	if !strings.HasPrefix(s, depsBlockedPrefix) {
		return nil, false
	}
	rest := strings.TrimPrefix(s, depsBlockedPrefix)
	if rest == "" {
		return nil, true
	}
	return strings.Split(rest, ","), true
}
