package httpserver

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("resource_id", func(fl validator.FieldLevel) bool {
			for _, c := range fl.Field().String() {
				if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
					return false
				}
			}
			return true
		})
	})
	return validate
}

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidateID checks a path identifier: required, at most 100 characters of
// letters, digits, hyphens and underscores.
func ValidateID(field, id string) error {
	err := getValidator().Var(id, "required,max=100,resource_id")
	if err == nil {
		return nil
	}
	ve := ValidationError{Field: field, Code: "INVALID_FORMAT", Message: field + " contains invalid characters"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "required":
			ve.Code, ve.Message = "REQUIRED", field+" is required"
		case "max":
			ve.Code, ve.Message = "TOO_LONG", field+" is too long (max 100 characters)"
		}
	}
	return &idError{ValidationError: ve}
}

type idError struct{ ValidationError }

func (e *idError) Error() string { return e.Message }

func (e *idError) Unwrap() error { return domain.ErrInvalidArgument }

func validationDetails(err error) any {
	var ie *idError
	if errors.As(err, &ie) {
		return []ValidationError{ie.ValidationError}
	}
	return nil
}
