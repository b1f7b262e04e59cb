package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"
)

var (
	hhmmRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules ...string) error
}

type validator struct {
	v *playground.Validate
}

// New returns a validator with the portal's custom tags registered:
// hhmm (24-hour zero-padded time), isodate (YYYY-MM-DD) and
// timeafter=Field (strictly later HH:MM than Field).
func New() Validator {
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("hhmm", func(fl playground.FieldLevel) bool {
		return IsHHMM(fl.Field().String())
	})
	_ = v.RegisterValidation("isodate", func(fl playground.FieldLevel) bool {
		return IsISODate(fl.Field().String())
	})
	_ = v.RegisterValidation("timeafter", validateTimeAfter)

	return &validator{v: v}
}

func (v *validator) Validate(obj interface{}) error {
	if err := v.v.Struct(obj); err != nil {
		return translate(err)
	}
	return nil
}

func (v *validator) ValidateField(field string, value interface{}, rules ...string) error {
	if err := v.v.Var(value, strings.Join(rules, ",")); err != nil {
		var errs playground.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok && len(errs) > 0 {
			return fmt.Errorf("%s %s", field, describe(errs[0]))
		}
		return fmt.Errorf("%s is invalid", field)
	}
	return nil
}

// IsHHMM reports whether s is a zero-padded 24-hour HH:MM time.
func IsHHMM(s string) bool {
	return hhmmRegex.MatchString(s)
}

// IsISODate reports whether s is a YYYY-MM-DD calendar date.
func IsISODate(s string) bool {
	if len(s) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// TimeAfter reports whether end is strictly later than start. Both must be
// zero-padded HH:MM so lexical order equals chronological order.
func TimeAfter(start, end string) bool {
	return IsHHMM(start) && IsHHMM(end) && end > start
}

func validateTimeAfter(fl playground.FieldLevel) bool {
	end := fl.Field().String()
	if end == "" {
		return true
	}
	parent := fl.Parent()
	if parent.Kind() == reflect.Ptr {
		parent = parent.Elem()
	}
	other := parent.FieldByName(fl.Param())
	if !other.IsValid() || other.Kind() != reflect.String {
		return false
	}
	start := other.String()
	if start == "" {
		return true
	}
	return TimeAfter(start, end)
}

func translate(err error) error {
	var errs playground.ValidationErrors
	if !asValidationErrors(err, &errs) {
		return err
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), describe(fe)))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func asValidationErrors(err error, target *playground.ValidationErrors) bool {
	errs, ok := err.(playground.ValidationErrors)
	if ok {
		*target = errs
	}
	return ok
}

func describe(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "hhmm":
		return "must be a 24-hour HH:MM time"
	case "isodate":
		return "must be a YYYY-MM-DD date"
	case "timeafter":
		return fmt.Sprintf("must be later than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	default:
		return "is invalid"
	}
}
