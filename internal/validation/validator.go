// Package validation checks and normalizes every externally supplied input
// before it reaches the store or the OS layer. All functions are pure.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/BradenHooton/hostpanel/internal/models"
	pkgauth "github.com/BradenHooton/hostpanel/pkg/auth"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	osUsernamePattern    = regexp.MustCompile(`^[a-z_][a-z0-9_-]*[$]?$`)
	panelUsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	panelEmailPattern    = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
	serviceNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9@._:-]*$`)
)

var (
	once     sync.Once
	validate *validator.Validate
	trans    ut.Translator
)

// engine lazily builds the shared validator with English messages.
func engine() (*validator.Validate, ut.Translator) {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(validate, trans)

		registerCustomValidators()
	})
	return validate, trans
}

func registerCustomValidators() {
	custom := []struct {
		tag     string
		check   func(string) bool
		message string
	}{
		{"os_username", osUsernamePattern.MatchString, "{0} must start with a lowercase letter or underscore and contain only lowercase letters, digits, '_' or '-'"},
		{"panel_username", panelUsernamePattern.MatchString, "{0} may only contain letters, digits, '_' and '-'"},
		{"panel_email", panelEmailPattern.MatchString, "{0} must be a valid email address"},
		{"service_name", serviceNamePattern.MatchString, "{0} must be a valid unit name"},
		{"password_text", passwordText, "{0} must not contain line breaks or NUL characters"},
		{"password_bytes", passwordBytes, fmt.Sprintf("{0} must be at most %d bytes", pkgauth.MaxPasswordLen)},
	}

	for _, c := range custom {
		check := c.check
		_ = validate.RegisterValidation(c.tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		})

		tag, message := c.tag, c.message
		_ = validate.RegisterTranslation(tag, trans,
			func(t ut.Translator) error { return t.Add(tag, message, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				msg, err := t.T(tag, fe.Field())
				if err != nil {
					return fe.Error()
				}
				return msg
			},
		)
	}
}

// passwordText rejects bytes that end a record on chpasswd's stdin.
func passwordText(s string) bool {
	return !strings.ContainsAny(s, "\n\r\x00")
}

// passwordBytes caps a password at what bcrypt reads.
func passwordBytes(s string) bool {
	return len(s) <= pkgauth.MaxPasswordLen
}

// checkStruct runs tag validation and returns the violations it found.
func checkStruct(v interface{}) *models.ValidationError {
	validate, trans := engine()
	result := &models.ValidationError{}

	err := validate.Struct(v)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		result.Add("body", err.Error(), nil)
		return result
	}

	for _, fe := range fieldErrs {
		result.Add(fieldPath(fe), fe.Translate(trans), nil)
	}
	return result
}

// fieldPath strips the struct name from the namespace: "groups[1]", "username".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
