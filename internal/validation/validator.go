package validation

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	phoneRe = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	plotRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 /-]{0,31}$`)
)

type Validator struct {
	v *validator.Validate
}

func New() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	if err := v.RegisterValidation("plot", func(fl validator.FieldLevel) bool {
		return plotRe.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	return &Validator{v: v}, nil
}

func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

func (val *Validator) ValidationErrors(err error) validator.ValidationErrors {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs
	}
	return nil
}
