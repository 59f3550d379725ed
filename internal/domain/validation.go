package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	maxRemarkLength   = 2000
	maxVerifierLength = 200
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// CreateProjectInput captures the payload for Project creation.
type CreateProjectInput struct {
	Name string `json:"name" validate:"required,max=200"`
}

// CreateActivityInput captures the payload for Activity creation.
type CreateActivityInput struct {
	ProjectID   string  `json:"projectId" validate:"required"`
	About       string  `json:"about" validate:"required,max=2000"`
	HoursWorked float64 `json:"hoursWorked" validate:"gt=0"`
	Remark      *string `json:"remark" validate:"omitnil,max=2000"`
	VerifiedBy  *string `json:"verifiedBy" validate:"omitnil,min=1,max=200"`
}

// UpdateActivityInput captures a partial Activity update. Nil pointers and
// unset patches leave the stored value unchanged.
type UpdateActivityInput struct {
	About       *string       `json:"about" validate:"omitnil,min=1,max=2000"`
	HoursWorked *float64      `json:"hoursWorked" validate:"omitnil,gt=0"`
	Remark      Patch[string] `json:"-"`
	VerifiedBy  Patch[string] `json:"-"`
}

func (in UpdateActivityInput) editsFields() bool {
	return in.About != nil || in.HoursWorked != nil || in.Remark.Set
}

func (in CreateProjectInput) normalize() CreateProjectInput {
	in.Name = strings.TrimSpace(in.Name)
	return in
}

func (in CreateActivityInput) normalize() CreateActivityInput {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.About = strings.TrimSpace(in.About)
	in.VerifiedBy = trimPtr(in.VerifiedBy)
	return in
}

func (in UpdateActivityInput) normalize() UpdateActivityInput {
	in.About = trimPtr(in.About)
	in.VerifiedBy.Value = trimPtr(in.VerifiedBy.Value)
	return in
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	return &trimmed
}

func validateProjectName(name string) error {
	return validateStruct(CreateProjectInput{Name: name})
}

func validateUpdate(in UpdateActivityInput) error {
	verr := &ValidationError{}
	collect(verr, validate.Struct(in))
	if in.Remark.Set && in.Remark.Value != nil {
		collectVar(verr, "remark", *in.Remark.Value, fmt.Sprintf("max=%d", maxRemarkLength))
	}
	if in.VerifiedBy.Set && in.VerifiedBy.Value != nil {
		collectVar(verr, "verifiedBy", *in.VerifiedBy.Value, fmt.Sprintf("min=1,max=%d", maxVerifierLength))
	}
	return verr.orNil()
}

func validateStruct(s any) error {
	verr := &ValidationError{}
	collect(verr, validate.Struct(s))
	return verr.orNil()
}

func collect(verr *ValidationError, err error) {
	if err == nil {
		return
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		verr.add("input", err.Error())
		return
	}
	for _, fe := range fieldErrors {
		verr.add(fe.Field(), validationMessage(fe.Field(), fe.Tag(), fe.Param()))
	}
}

func collectVar(verr *ValidationError, field string, value any, tag string) {
	err := validate.Var(value, tag)
	if err == nil {
		return
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		verr.add(field, validationMessage(field, fe.Tag(), fe.Param()))
		return
	}
	verr.add(field, err.Error())
}

func validationMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if param == "1" {
			return fmt.Sprintf("%s must not be empty", field)
		}
		return fmt.Sprintf("%s must be at least %s characters long", field, param)
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
