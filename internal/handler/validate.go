package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"appointment-booking-api/internal/model"
)

func newValidator(now func() time.Time) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(appointmentRequest)
		today := model.DateOf(now().UTC())
		if req.Date != nil && req.Date.Before(today) {
			sl.ReportError(req.Date, "date", "Date", "notpast", "")
		}
		if req.StartTime != nil && req.EndTime != nil && *req.EndTime <= *req.StartTime {
			sl.ReportError(req.EndTime, "endTime", "EndTime", "aftertime", "startTime")
		}
	}, appointmentRequest{})
	return v
}

// check runs the validator and renders failures as field errors.
func (h *Handler) check(v any) []FieldError {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []FieldError{{Field: "", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "email":
		return fe.Field() + " must be a valid email address"
	case "notpast":
		return fe.Field() + " cannot be in the past"
	case "aftertime":
		return fmt.Sprintf("%s must be after %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
