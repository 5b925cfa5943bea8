package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AskRequest is the input to Engine.Ask.
type AskRequest struct {
	Question string `json:"question" validate:"required,min=3,max=500"`

	// OwnerID names a cache namespace segment, so it may not contain ':'.
	OwnerID string `json:"owner_id" validate:"required,excludes=:"`
	// MaxSources caps retrieved notes; 0 uses the configured limit.
	MaxSources int `json:"max_sources,omitempty" validate:"omitempty,min=1,max=50"`
	// IncludeRelated toggles graph expansion; nil means yes.
	IncludeRelated *bool `json:"include_related,omitempty"`
}

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// SearchRequest is the input to Engine.Search.
type SearchRequest struct {
	Query   string `json:"query" validate:"required,max=500"`
	OwnerID string `json:"owner_id" validate:"required,excludes=:"`
	// Limit caps results; 0 uses the configured limit.
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=50"`
}

// normalize trims the question and validates the request. The returned copy
// is what the pipeline runs on.
func (r AskRequest) normalize() (AskRequest, error) {
	r.Question = strings.TrimSpace(r.Question)
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	return r, check(r)
}

func (r SearchRequest) normalize() (SearchRequest, error) {
	r.Query = strings.TrimSpace(r.Query)
	r.OwnerID = strings.TrimSpace(r.OwnerID)
	return r, check(r)
}

// check validates s and converts the first failure into a *ValidationError.
func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Reason: reason(fe)}
}

func (r AskRequest) includeRelated() bool {
	return r.IncludeRelated == nil || *r.IncludeRelated
}

func reason(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must be at most %s%s", fe.Param(), unit)
	case "excludes":
		return fmt.Sprintf("must not contain %q", fe.Param())
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}
