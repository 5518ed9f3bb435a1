package schema

import (
	"errors"
	"fmt"
	"mime"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate holds the tag rules shared by every descriptor. It is set up in
// init and only read afterwards.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("label", validateLabel)
	_ = validate.RegisterValidation("mediatype", validateMediaType)
}

// validateLabel rejects labels that cannot round-trip through the
// "name: description" level form.
func validateLabel(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && !strings.ContainsAny(s, ": \t\n")
}

func validateMediaType(fl validator.FieldLevel) bool {
	_, _, err := mime.ParseMediaType(fl.Field().String())
	return err == nil
}

// Struct runs the validate tags on a struct value.
func Struct(v any) error {
	return validate.Struct(v)
}

// CheckLabel validates one severity or status label.
func CheckLabel(name string) error {
	if err := validate.Var(name, "required,printascii,label"); err != nil {
		return fmt.Errorf("label %q must be printable ASCII without spaces or colons", name)
	}
	return nil
}

// CheckContentType validates a MIME media type.
func CheckContentType(ct string) error {
	if err := validate.Var(ct, "required,mediatype"); err != nil {
		return fmt.Errorf("content type %q is not a valid media type", ct)
	}
	return nil
}

// CheckLevels validates one allowed set: non-empty, valid and unique labels.
func CheckLevels(levels []Level) error {
	if len(levels) == 0 {
		return errors.New("set must not be empty")
	}
	seen := make(map[string]bool, len(levels))
	for _, l := range levels {
		if err := CheckLabel(l.Name); err != nil {
			return err
		}
		if seen[l.Name] {
			return fmt.Errorf("label %q listed twice", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}

// CheckDisjoint fails when a status is both active and inactive.
func CheckDisjoint(active, inactive []Level) error {
	names := Names(active)
	for _, l := range inactive {
		if slices.Contains(names, l.Name) {
			return fmt.Errorf("status %q is both active and inactive", l.Name)
		}
	}
	return nil
}

// MemberOf returns a Check that requires a single value to appear in the
// levels picked from the resolved sets.
func MemberOf(kind string, pick func(AllowedSets) []Level) func([]string, AllowedSets) error {
	return func(v []string, sets AllowedSets) error {
		val := first(v)
		allowed := Names(pick(sets))
		if !slices.Contains(allowed, val) {
			return fmt.Errorf("%s %q not in %s", kind, val, strings.Join(allowed, ", "))
		}
		return nil
	}
}

// ContentType is a Check for media type fields.
func ContentType(v []string, _ AllowedSets) error {
	return CheckContentType(first(v))
}
