package handler

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"ignitia/internal/model"
	"ignitia/pkg/apperr"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	registerOnce sync.Once
	registerErr  error
	amountCap    atomic.Int64
)

// RegisterValidators installs the custom binding tags on gin's validator.
// maxAmount bounds fields tagged "amount"; zero leaves them uncapped.
func RegisterValidators(maxAmount int64) error {
	amountCap.Store(maxAmount)
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		registerErr = errors.Join(
			v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
				return model.IsValidPaymentMethod(fl.Field().String())
			}),
			v.RegisterValidation("registration_status", func(fl validator.FieldLevel) bool {
				s := fl.Field().String()
				return s == model.RegistrationStatusParticipated || s == model.RegistrationStatusCancelled
			}),
			v.RegisterValidation("amount", validAmount),
		)
	})
	if registerErr != nil {
		return fmt.Errorf("register validators: %w", registerErr)
	}
	return nil
}

func validAmount(fl validator.FieldLevel) bool {
	amount := fl.Field().Int()
	limit := amountCap.Load()
	return amount > 0 && (limit <= 0 || amount <= limit)
}

// bindError converts a binding failure into a validation error naming the
// offending fields.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.CodeValidation, err, "malformed request body")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	typed := apperr.Wrap(apperr.CodeValidation, err, fmt.Sprintf("invalid fields: %s", strings.Join(fields, ", ")))
	for _, fe := range verrs {
		typed.WithDetail(fe.Field(), fe.Tag())
	}
	return typed
}
