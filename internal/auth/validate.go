// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names so details match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError returns a CodeValidation error carrying field details.
func ValidationError(msg string, details ...FieldError) error {
	if details == nil {
		details = []FieldError{}
	}
	return oops.Code(CodeValidation).With(DetailsKey, details).Errorf("%s", msg)
}

// ValidateStruct checks v against its `validate` tags and converts failures
// into a CodeValidation error.
func ValidateStruct(v any) error {
	details, err := structDetails(v)
	if err != nil {
		return err
	}
	if len(details) > 0 {
		return ValidationError("Validation failed", details...)
	}
	return nil
}

func structDetails(v any) ([]FieldError, error) {
	err := validate.Struct(v)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, oops.Code("VALIDATION_INTERNAL").Wrap(err)
	}
	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return details, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	default:
		return "is invalid"
	}
}

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
