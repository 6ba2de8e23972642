package guard

import "certportal/internal/session/models"

// Outcome is the guard's verdict for one request.
type Outcome string

const (
	OutcomeAllow                Outcome = "allow"
	OutcomeRedirectLogin        Outcome = "redirect_login"
	OutcomeRedirectUnauthorized Outcome = "redirect_unauthorized"
)

// Decide applies rule to the resolved principal; a nil principal means the
// request is not authenticated.
func Decide(rule Rule, principal *models.CurrentUser) Outcome {
	if principal == nil {
		return OutcomeRedirectLogin
	}
	if !rule.Admits(principal.Role) {
		return OutcomeRedirectUnauthorized
	}
	return OutcomeAllow
}
