package api

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidations adds the "doj" rule to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("doj", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	})
}

// RegisterBindingValidations installs the custom rules on gin's binding validator.
func RegisterBindingValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return RegisterValidations(v)
}
