package services

import (
	"math"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

const (
	NewUserExemptPeriod = 7 * 24 * time.Hour

	langRepeatMinutes  = 55
	logicRepeatMinutes = 110
	langToLogicGrace   = 10
	langToLogicMinutes = 110
)

// Retake window rules and reasons
const (
	RuleLangToLang           = "lang_to_lang_55m"
	RuleLogicToLogic         = "logic_to_logic_110m"
	RuleLangToLogicException = "lang_to_logic_10m_exception"
	RuleLangToLogic          = "lang_to_logic_110m"
	RuleConcurrentSubmission = "concurrent_submission"

	ReasonTooEarly   = "too_early"
	ReasonInProgress = "submission_in_progress"
	ExemptNewUser    = "new_user_7d"
)

// LastAttempt is the part of the most recent attempt the window depends on.
type LastAttempt struct {
	Section     string
	Year        string
	ReferenceAt time.Time
}

// WindowInput holds everything CheckRetakeWindow reads. A zero AccountCreatedAt means the
// account age is unknown and no exemption applies.
type WindowInput struct {
	Now              time.Time
	AccountCreatedAt time.Time
	Last             *LastAttempt
	RequestedYear    string
	RequestedSection string
}

type WindowDecision struct {
	Blocked           bool   `json:"blocked"`
	Rule              string `json:"rule,omitempty"`
	RetryAfterMinutes int    `json:"retry_after_minutes,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Exempt            string `json:"exempt,omitempty"`
}

// CheckRetakeWindow decides whether a new submission of RequestedSection is allowed now.
func CheckRetakeWindow(in WindowInput) WindowDecision {
	if !in.AccountCreatedAt.IsZero() && in.Now.Sub(in.AccountCreatedAt) < NewUserExemptPeriod {
		return WindowDecision{Exempt: ExemptNewUser}
	}

	last := in.Last
	if last == nil || last.ReferenceAt.IsZero() {
		return WindowDecision{}
	}

	elapsed := math.Max(0, in.Now.Sub(last.ReferenceAt).Minutes())
	requested := in.RequestedSection

	switch {
	case last.Section == models.SectionLang && requested == models.SectionLang && elapsed < langRepeatMinutes:
		return blocked(RuleLangToLang, langRepeatMinutes, elapsed)
	case last.Section == models.SectionLogic && requested == models.SectionLogic && elapsed < logicRepeatMinutes:
		return blocked(RuleLogicToLogic, logicRepeatMinutes, elapsed)
	}

	if last.Section == models.SectionLang && requested == models.SectionLogic && sameBaseYear(last.Year, in.RequestedYear) {
		if elapsed <= langToLogicGrace {
			return WindowDecision{Rule: RuleLangToLogicException}
		}
		if elapsed < langToLogicMinutes {
			return blocked(RuleLangToLogic, langToLogicMinutes, elapsed)
		}
	}

	return WindowDecision{}
}

func blocked(rule string, required, elapsed float64) WindowDecision {
	return WindowDecision{
		Blocked:           true,
		Rule:              rule,
		RetryAfterMinutes: retryAfter(required, elapsed),
		Reason:            ReasonTooEarly,
	}
}

// retryAfter rounds the remaining wait up to whole minutes, at least 1.
func retryAfter(required, elapsed float64) int {
	left := int(math.Ceil(required - elapsed))
	if left < 1 {
		return 1
	}
	return left
}

func sameBaseYear(a, b string) bool {
	ya, okA := BaseYear(a)
	yb, okB := BaseYear(b)
	return okA && okB && ya == yb
}
