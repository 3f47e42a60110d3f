package chat

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate

	clientIDRE = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// clientid: 1-64 token characters, no whitespace.
		_ = v.RegisterValidation("clientid", func(fl validator.FieldLevel) bool {
			return clientIDRE.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks an inbound payload's struct tags. Any violation is
// reported as ErrInvalidParams.
func Validate(payload any) error {
	if err := payloadValidator().Struct(payload); err != nil {
		return ErrInvalidParams
	}
	return nil
}
