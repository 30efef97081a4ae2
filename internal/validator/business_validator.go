package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Subjects graded by the subject answer sheet flow
var Subjects = map[string]bool{
	"humanities": true,
	"social":     true,
	"science":    true,
	"tech":       true,
	"art":        true,
	"mixed":      true,
	"mock1":      true,
	"mock2":      true,
}

const MaxRevealQuestionID = 80

// BusinessValidator handles exam specific rules
type BusinessValidator struct {
	validate *validator.Validate
}

func newBusinessValidator(validate *validator.Validate) *BusinessValidator {
	return &BusinessValidator{validate: validate}
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("exam_form", func(fl validator.FieldLevel) bool {
		form := strings.ToLower(strings.TrimSpace(fl.Field().String()))
		return form == "odd" || form == "even"
	})

	bv.validate.RegisterValidation("exam_section", func(fl validator.FieldLevel) bool {
		section := strings.ToLower(strings.TrimSpace(fl.Field().String()))
		return section == "lang" || section == "logic"
	})

	bv.validate.RegisterValidation("exam_subject", func(fl validator.FieldLevel) bool {
		return Subjects[strings.TrimSpace(fl.Field().String())]
	})
}

// validateCrossField checks rules that span more than one field
func (bv *BusinessValidator) validateCrossField(s interface{}) ValidationErrors {
	switch req := s.(type) {
	case *SubjectGradeRequest:
		return validateRange(req.StartQ, req.EndQ)
	case *StaffSubjectGradeRequest:
		return validateRange(req.StartQ, req.EndQ)
	case *MarkViewedRequest:
		if req.AttemptID == nil && len(req.AttemptIDs) == 0 {
			return ValidationErrors{{Field: "attempt_ids", Message: "at least one attempt id is required", Rule: "required"}}
		}
	}
	return nil
}

func validateRange(startQ, endQ int) ValidationErrors {
	if startQ > endQ {
		return ValidationErrors{{
			Field:   "end_q",
			Message: "must not be smaller than start_q",
			Value:   endQ,
			Rule:    "range",
		}}
	}
	return nil
}
