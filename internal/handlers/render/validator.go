package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const passwordSpecials = "@$!%*#?&"

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("password", validatePassword)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Password is at least 8 chars of latin letters, digits and specials '@$!%*#?&'
// with at least one of each kind
func validatePassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 {
		return false
	}

	var letter, digit, special bool
	// It's ok to work with string as bytes here: any non ascii byte fails anyway
	for i := 0; i < len(password); i++ {
		c := password[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			letter = true
		case c >= '0' && c <= '9':
			digit = true
		case strings.IndexByte(passwordSpecials, c) >= 0:
			special = true
		default:
			return false
		}
	}

	return letter && digit && special
}
