package router

import "github.com/meshbus/meshbus/internal/constants"

// nonLeadIntents is the capability set any role other than Lead may emit
// via a `::bus-send` directive (spec.md §4.5 step 5).
var nonLeadIntents = map[string]bool{
	constants.IntentQuestion: true,
	constants.IntentReview:   true,
	constants.IntentTest:     true,
	constants.IntentFix:      true,
	constants.IntentInfo:     true,
	constants.IntentAlert:    true,
}

// checkCapability reports whether role may emit intent, and a one-line
// reason when it may not.
func checkCapability(role, intent string) (bool, string) {
	if role == leadRole {
		return true, ""
	}
	if nonLeadIntents[intent] {
		return true, ""
	}
	return false, "role " + role + " is not permitted to emit intent " + intent
}

// validRole reports whether role is a recognized, present session role.
func validRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
