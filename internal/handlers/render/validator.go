package render

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("username", validateUsername)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

// Return 'json' tag value instead of struct field name
// Look at documentation of 'RegisterTagNameFunc' for more details
func useJSONTagNames(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" {
		tag = fld.Tag.Get("form")
	}

	name := strings.SplitN(tag, ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Latin letters, digits, dots, dashes and underscores only
func validateUsername(fl validator.FieldLevel) bool {
	return usernameRe.MatchString(fl.Field().String())
}
