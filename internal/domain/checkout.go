package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidStepTransition is returned when a checkout step change is not allowed.
var ErrInvalidStepTransition = errors.New("checkout step: invalid transition")

// CheckoutStep is one state of the checkout wizard. The zero value is not a valid step.
type CheckoutStep string

const (
	// StepCartReview lets the buyer review cart lines.
	StepCartReview CheckoutStep = "cart_review"
	// StepCustomerInfo collects contact details and addresses.
	StepCustomerInfo CheckoutStep = "customer_info"
	// StepShippingPayment collects the shipping method and payment provider.
	StepShippingPayment CheckoutStep = "shipping_payment"
	// StepConfirmation is terminal and only reachable through a successful order submission.
	StepConfirmation CheckoutStep = "confirmation"
)

var checkoutStepOrder = []CheckoutStep{
	StepCartReview,
	StepCustomerInfo,
	StepShippingPayment,
	StepConfirmation,
}

// ParseCheckoutStep validates a raw step name.
func ParseCheckoutStep(raw string) (CheckoutStep, error) {
	step := CheckoutStep(strings.ToLower(strings.TrimSpace(raw)))
	if !step.Valid() {
		return "", fmt.Errorf("checkout step: unknown step %q", raw)
	}
	return step, nil
}

// Valid reports whether the step is one of the four known states.
func (s CheckoutStep) Valid() bool {
	return s.Index() >= 0
}

// Index returns the zero-based position of the step, or -1 when unknown.
func (s CheckoutStep) Index() int {
	for i, step := range checkoutStepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the following step for user-driven advances. Confirmation is never
// reachable through Next; use Complete once the order is submitted.
func (s CheckoutStep) Next() (CheckoutStep, error) {
	switch s {
	case StepCartReview:
		return StepCustomerInfo, nil
	case StepCustomerInfo:
		return StepShippingPayment, nil
	default:
		return s, fmt.Errorf("%w: next from %q", ErrInvalidStepTransition, s)
	}
}

// Complete moves ShippingPayment to Confirmation.
func (s CheckoutStep) Complete() (CheckoutStep, error) {
	if s != StepShippingPayment {
		return s, fmt.Errorf("%w: complete from %q", ErrInvalidStepTransition, s)
	}
	return StepConfirmation, nil
}

// Prev returns the previous step. CartReview has no predecessor and Confirmation is terminal.
func (s CheckoutStep) Prev() (CheckoutStep, error) {
	switch s {
	case StepCustomerInfo:
		return StepCartReview, nil
	case StepShippingPayment:
		return StepCustomerInfo, nil
	default:
		return s, fmt.Errorf("%w: prev from %q", ErrInvalidStepTransition, s)
	}
}

// CanTransition reports whether moving from s to target is a single allowed move.
func (s CheckoutStep) CanTransition(target CheckoutStep) bool {
	if next, err := s.Next(); err == nil && next == target {
		return true
	}
	if prev, err := s.Prev(); err == nil && prev == target {
		return true
	}
	if done, err := s.Complete(); err == nil && done == target {
		return true
	}
	return false
}

// AddressRole distinguishes the two addresses on an order.
type AddressRole string

const (
	// AddressRoleShipping is the delivery address.
	AddressRoleShipping AddressRole = "shipping"
	// AddressRoleBilling is the invoicing address.
	AddressRoleBilling AddressRole = "billing"
)

// ParseAddressRole validates a raw role name.
func ParseAddressRole(raw string) (AddressRole, error) {
	switch role := AddressRole(strings.ToLower(strings.TrimSpace(raw))); role {
	case AddressRoleShipping, AddressRoleBilling:
		return role, nil
	default:
		return "", fmt.Errorf("address role: unknown role %q", raw)
	}
}

// AddressMode is the discriminator of AddressSelection.
type AddressMode string

const (
	// AddressModeExisting selects a saved address by id.
	AddressModeExisting AddressMode = "existing"
	// AddressModeNew uses the address entered in the form.
	AddressModeNew AddressMode = "new"
	// AddressModeSameAsShipping mirrors the shipping address. Billing only.
	AddressModeSameAsShipping AddressMode = "same_as_shipping"
)

// AddressSelection records how one address role is resolved.
type AddressSelection struct {
	Mode      AddressMode `json:"mode"`
	AddressID string      `json:"addressId,omitempty"`
}

// UsingExisting selects a saved address.
func UsingExisting(id string) AddressSelection {
	return AddressSelection{Mode: AddressModeExisting, AddressID: strings.TrimSpace(id)}
}

// EnteringNew marks the role as using form input.
func EnteringNew() AddressSelection {
	return AddressSelection{Mode: AddressModeNew}
}

// SameAsShipping marks billing as mirroring shipping.
func SameAsShipping() AddressSelection {
	return AddressSelection{Mode: AddressModeSameAsShipping}
}

// IsExisting reports whether the selection points at a saved address.
func (s AddressSelection) IsExisting() bool {
	return s.Mode == AddressModeExisting && s.AddressID != ""
}

// CheckoutFormState is the mutable aggregate behind the checkout form.
type CheckoutFormState struct {
	Customer          CustomerFields   `json:"customer"`
	Shipping          AddressFields    `json:"shipping"`
	Billing           *AddressFields   `json:"billing,omitempty"`
	SameBilling       bool             `json:"sameBilling"`
	ShippingSelection AddressSelection `json:"shippingSelection"`
	BillingSelection  AddressSelection `json:"billingSelection"`
	ShippingMethodID  string           `json:"shippingMethodId,omitempty"`
	PaymentProviderID string           `json:"paymentProviderId,omitempty"`
	Notes             string           `json:"notes,omitempty"`

	// Billing input captured when SameBilling was switched on, restored when switched off.
	BillingBackup          *AddressFields   `json:"billingBackup,omitempty"`
	BillingBackupSelection AddressSelection `json:"billingBackupSelection"`
}

// NewCheckoutFormState returns the initial form: new shipping address, billing same as shipping.
func NewCheckoutFormState() CheckoutFormState {
	return CheckoutFormState{
		SameBilling:       true,
		ShippingSelection: EnteringNew(),
		BillingSelection:  SameAsShipping(),
	}
}

// CheckoutSession is the server-side checkout state of one storefront session.
type CheckoutSession struct {
	SessionID           string            `json:"sessionId"`
	Step                CheckoutStep      `json:"step"`
	Form                CheckoutFormState `json:"form"`
	CustomerID          string            `json:"customerId,omitempty"`
	GuestCustomerID     string            `json:"guestCustomerId,omitempty"`
	GuestAddressIDs     []string          `json:"guestAddressIds,omitempty"`
	GuestIdempotencyKey string            `json:"guestIdempotencyKey,omitempty"`
	OrderID             string            `json:"orderId,omitempty"`
	PaymentRedirectURL  string            `json:"paymentRedirectUrl,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of the session.
func (s CheckoutSession) Clone() CheckoutSession {
	dup := s
	dup.Form = s.Form.Clone()
	if s.GuestAddressIDs != nil {
		dup.GuestAddressIDs = append([]string(nil), s.GuestAddressIDs...)
	}
	return dup
}

// Clone returns a deep copy of the form state.
func (f CheckoutFormState) Clone() CheckoutFormState {
	dup := f
	if f.Billing != nil {
		billing := *f.Billing
		dup.Billing = &billing
	}
	if f.BillingBackup != nil {
		backup := *f.BillingBackup
		dup.BillingBackup = &backup
	}
	return dup
}
