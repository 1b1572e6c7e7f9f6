package handler

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// newValidator returns a validator that understands decimal_gt and
// decimal_gte on decimal.Decimal fields, e.g. `validate:"decimal_gt=0"`.
func newValidator() *validator.Validate {
	validate := validator.New()

	// decimals are validated through their canonical string form
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if value, ok := field.Interface().(decimal.Decimal); ok {
			return value.String()
		}
		return nil
	}, decimal.Decimal{})

	validate.RegisterValidation("decimal_gt", func(fl validator.FieldLevel) bool {
		value, bound, ok := decimalField(fl)
		return ok && value.GreaterThan(bound)
	})
	validate.RegisterValidation("decimal_gte", func(fl validator.FieldLevel) bool {
		value, bound, ok := decimalField(fl)
		return ok && value.GreaterThanOrEqual(bound)
	})

	return validate
}

func decimalField(fl validator.FieldLevel) (decimal.Decimal, decimal.Decimal, bool) {
	value, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	bound, err := decimal.NewFromString(fl.Param())
	if err != nil {
		return decimal.Zero, decimal.Zero, false
	}
	return value, bound, true
}
