package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// CallbackRequest is the payload an anchor posts for a transaction update.
type CallbackRequest struct {
	StellarAccount      string `json:"stellar_account" validate:"required,len=56,startswith=G,alphanum"`
	Amount              string `json:"amount" validate:"required,positive_decimal"`
	AssetCode           string `json:"asset_code" validate:"required,max=12,alphanum"`
	AnchorTransactionID string `json:"anchor_transaction_id" validate:"omitempty,max=255"`
	CallbackType        string `json:"callback_type" validate:"omitempty,max=20"`
	CallbackStatus      string `json:"callback_status" validate:"omitempty,max=20"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return decimalPattern.MatchString(s) && strings.Trim(s, "0.") != ""
	})
	return v
}

// validationDetails flattens validator errors into "field: failed rule" strings.
func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return out
}
