package services

import (
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"unicode"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// ValidationError carries per-field messages for the checkout form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrCheckoutInvalidInput.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", ErrCheckoutInvalidInput, strings.Join(names, ", "))
}

// Is lets errors.Is(err, ErrCheckoutInvalidInput) match validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrCheckoutInvalidInput
}

// AsValidationError extracts the field map when err is a validation failure.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

type fieldErrors map[string]string

func (f fieldErrors) required(name, value string) {
	if strings.TrimSpace(value) == "" {
		f[name] = "is required"
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// validateCustomerStep checks the contact and address fields collected on CustomerInfo.
func validateCustomerStep(form domain.CheckoutFormState) error {
	errs := fieldErrors{}
	errs.required("customer.firstName", form.Customer.FirstName)
	errs.required("customer.lastName", form.Customer.LastName)
	if email := strings.TrimSpace(form.Customer.Email); email == "" {
		errs["customer.email"] = "is required"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs["customer.email"] = "must be a valid email address"
	}
	if phone := strings.TrimSpace(form.Customer.Phone); phone == "" {
		errs["customer.phone"] = "is required"
	} else if !validPhone(phone) {
		errs["customer.phone"] = "must be a valid phone number"
	}

	if !form.ShippingSelection.IsExisting() {
		validateAddress(errs, "shipping", form.Shipping)
	}
	if !form.SameBilling && !form.BillingSelection.IsExisting() {
		billing := domain.AddressFields{}
		if form.Billing != nil {
			billing = *form.Billing
		}
		validateAddress(errs, "billing", billing)
	}
	return errs.err()
}

func validateAddress(errs fieldErrors, prefix string, fields domain.AddressFields) {
	errs.required(prefix+".address1", fields.Address1)
	errs.required(prefix+".city", fields.City)
	errs.required(prefix+".province", fields.Province)
	errs.required(prefix+".zip", fields.Zip)
}

// validateSubmit checks the selections required on ShippingPayment.
func validateSubmit(form domain.CheckoutFormState) error {
	errs := fieldErrors{}
	errs.required("shippingMethodId", form.ShippingMethodID)
	errs.required("paymentProviderId", form.PaymentProviderID)
	return errs.err()
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 6 && digits <= 15
}
