package checkout

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func shippingValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(normalizePhone(fl.Field().String()))
		})
		validate = v
	})
	return validate
}

// ValidateShipping 本地校验收货信息，返回 *ValidationError
func ValidateShipping(info ShippingInfo) error {
	err := shippingValidator().Struct(info.normalize())
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return newValidationError(map[string]string{"shipping": err.Error()})
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = describeTag(fe.Tag())
	}
	return newValidationError(fields)
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email"
	case "phone":
		return "must have 7 to 15 digits"
	case "min", "max":
		return "has invalid length"
	default:
		return "is invalid"
	}
}

// normalizePhone 去掉空格、短横线与括号
func normalizePhone(raw string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	return replacer.Replace(strings.TrimSpace(raw))
}
