package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const maxResourceIDLength = 100

// ResourceIDRegex matches ids that are safe to embed in room names and redis keys.
var ResourceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("resource_id", func(fl validator.FieldLevel) bool {
			return ValidateResourceID(fl.Field().String(), fl.FieldName()) == nil
		})
	})
	return validate
}

// Struct runs the `validate` tags of v and flattens failures into one error
// naming the offending JSON fields.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// ValidateResourceID validates a user or event id
func ValidateResourceID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > maxResourceIDLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, maxResourceIDLength)
	}
	if !ResourceIDRegex.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only letters, numbers, _, - allowed)", fieldName)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s is too long (max %s)", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "resource_id":
		return fmt.Sprintf("%s must be a valid id", fe.Field())
	default:
		return fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
