package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidationError is a readable summary that still unwraps to
// validator.ValidationErrors.
type ValidationError struct {
	Fields validator.ValidationErrors
	msg    string
}

func (e *ValidationError) Error() string { return e.msg }

func (e *ValidationError) Unwrap() error { return e.Fields }

// ValidateStruct runs the `validate` struct tags and flattens the result into
// a single readable error.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return &ValidationError{Fields: verrs, msg: strings.Join(msgs, "; ")}
}

// ProcessValidationErrors maps field name -> failing tag, for HTTP responses.
func ProcessValidationErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}
