package middleware

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"rigshare/internal/app/apperr"
)

// StructValidator checks `validate` tags on commands and queries. Failures
// become validation errors naming the offending fields.
type StructValidator struct {
	v *validator.Validate
}

func NewStructValidator() *StructValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := strings.Split(f.Tag.Get("json"), ",")[0]; name != "" && name != "-" {
			return name
		}
		return f.Name
	})
	return &StructValidator{v: v}
}

func (s *StructValidator) Validate(_ context.Context, message any) error {
	t := reflect.TypeOf(message)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	err := s.v.Struct(message)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, describe(f))
	}
	return apperr.Invalid(messageOp(message), strings.Join(msgs, "; "))
}

func describe(f validator.FieldError) string {
	switch f.Tag() {
	case "required":
		return f.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", f.Field(), f.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", f.Field(), f.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", f.Field(), f.Param())
	}
	return fmt.Sprintf("%s failed %s", f.Field(), f.Tag())
}

func messageOp(message any) string {
	type keyed interface{ Key() string }
	if k, ok := message.(keyed); ok {
		return k.Key()
	}
	return "validate"
}

var _ Validator = (*StructValidator)(nil)
