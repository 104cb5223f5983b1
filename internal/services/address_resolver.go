package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/backend"
)

var (
	// ErrBillingLocked indicates billing cannot be changed while it mirrors shipping.
	ErrBillingLocked = errors.New("address resolver: billing follows shipping")
	// ErrNoShippingAddress indicates no shipping address could be resolved.
	ErrNoShippingAddress = errors.New("no shipping address available")
	// ErrAddressNotFound indicates the selected address is not owned by the customer.
	ErrAddressNotFound = errors.New("address resolver: address not found")
)

// AddressResolver applies address selections to a checkout form and persists new
// addresses for signed-in customers.
type AddressResolver struct {
	customers CustomerGateway
	logger    func(context.Context, string, map[string]any)
}

// NewAddressResolver builds a resolver. customers may be nil when only the pure
// state transitions are needed.
func NewAddressResolver(customers CustomerGateway, logger func(context.Context, string, map[string]any)) *AddressResolver {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AddressResolver{customers: customers, logger: logger}
}

// SelectExisting points role at a saved address and copies its fields into the form.
func (r *AddressResolver) SelectExisting(form *domain.CheckoutFormState, role domain.AddressRole, addr domain.Address) error {
	id := strings.TrimSpace(addr.ID)
	if id == "" {
		return fmt.Errorf("%w: address id is required", ErrCheckoutInvalidInput)
	}
	switch role {
	case domain.AddressRoleShipping:
		form.ShippingSelection = domain.UsingExisting(id)
		form.Shipping = addr.Fields()
		mirrorBilling(form)
	case domain.AddressRoleBilling:
		if form.SameBilling {
			return ErrBillingLocked
		}
		form.BillingSelection = domain.UsingExisting(id)
		fields := addr.Fields()
		form.Billing = &fields
	default:
		return fmt.Errorf("%w: unknown address role %q", ErrCheckoutInvalidInput, role)
	}
	return nil
}

// EnterNew switches role to the address typed into the form.
func (r *AddressResolver) EnterNew(form *domain.CheckoutFormState, role domain.AddressRole) error {
	switch role {
	case domain.AddressRoleShipping:
		form.ShippingSelection = domain.EnteringNew()
		mirrorBilling(form)
	case domain.AddressRoleBilling:
		if form.SameBilling {
			return ErrBillingLocked
		}
		form.BillingSelection = domain.EnteringNew()
		if form.Billing == nil {
			form.Billing = &domain.AddressFields{}
		}
	default:
		return fmt.Errorf("%w: unknown address role %q", ErrCheckoutInvalidInput, role)
	}
	return nil
}

// ToggleSameAsShipping turns billing mirroring on or off. Turning it on keeps the
// manual billing input aside; turning it off restores it. Repeating a value is a no-op.
func (r *AddressResolver) ToggleSameAsShipping(form *domain.CheckoutFormState, on bool) {
	if form.SameBilling == on {
		return
	}
	if on {
		form.BillingBackup = nil
		if form.Billing != nil {
			backup := *form.Billing
			form.BillingBackup = &backup
		}
		form.BillingBackupSelection = form.BillingSelection
		form.SameBilling = true
		form.BillingSelection = domain.SameAsShipping()
		mirrorBilling(form)
		return
	}

	restored := domain.AddressFields{}
	if form.BillingBackup != nil {
		restored = *form.BillingBackup
	}
	form.Billing = &restored
	form.SameBilling = false
	if form.BillingBackupSelection.IsExisting() {
		form.BillingSelection = form.BillingBackupSelection
	} else {
		form.BillingSelection = domain.EnteringNew()
	}
}

func mirrorBilling(form *domain.CheckoutFormState) {
	if !form.SameBilling {
		return
	}
	mirror := form.Shipping
	form.Billing = &mirror
}

// pendingAddressRoles lists the roles whose address is typed in but not saved yet.
func pendingAddressRoles(form domain.CheckoutFormState) []domain.AddressRole {
	var pending []domain.AddressRole
	if form.ShippingSelection.Mode == domain.AddressModeNew && !form.Shipping.IsZero() {
		pending = append(pending, domain.AddressRoleShipping)
	}
	if !form.SameBilling && form.BillingSelection.Mode == domain.AddressModeNew && form.Billing != nil && !form.Billing.IsZero() {
		pending = append(pending, domain.AddressRoleBilling)
	}
	return pending
}

// PersistPending saves every address still being entered onto the customer and moves
// the matching role to the id the backend assigned.
func (r *AddressResolver) PersistPending(ctx context.Context, customer domain.Customer, form *domain.CheckoutFormState) (domain.Customer, error) {
	pending := pendingAddressRoles(*form)
	if len(pending) == 0 {
		return customer, nil
	}
	if r.customers == nil {
		return customer, fmt.Errorf("%w: customer gateway not configured", ErrCheckoutUnavailable)
	}

	known := make(map[string]struct{}, len(customer.Addresses))
	addresses := make([]domain.Address, 0, len(customer.Addresses)+len(pending))
	for _, addr := range customer.Addresses {
		known[addr.ID] = struct{}{}
		addresses = append(addresses, addr)
	}
	for _, role := range pending {
		fields := form.Shipping
		if role == domain.AddressRoleBilling {
			fields = *form.Billing
		}
		addresses = append(addresses, fields.Address(len(addresses) == 0))
	}

	updated, err := r.customers.UpdateCustomer(ctx, customer.ID, backend.CustomerPatch{Addresses: addresses})
	if err != nil {
		return customer, fmt.Errorf("%w: persist addresses: %w", ErrCheckoutUnavailable, err)
	}

	var assigned []string
	for _, addr := range updated.Addresses {
		if _, ok := known[addr.ID]; !ok && addr.ID != "" {
			assigned = append(assigned, addr.ID)
		}
	}
	if len(assigned) < len(pending) {
		return updated, fmt.Errorf("%w: backend returned %d new address ids, expected %d", ErrCheckoutUnavailable, len(assigned), len(pending))
	}
	for i, role := range pending {
		if role == domain.AddressRoleShipping {
			form.ShippingSelection = domain.UsingExisting(assigned[i])
		} else {
			form.BillingSelection = domain.UsingExisting(assigned[i])
		}
	}
	r.logger(ctx, "checkout.addresses_persisted", map[string]any{"customerId": customer.ID, "count": len(pending)})
	return updated, nil
}

// ResolveAddressIDs picks the shipping and billing ids for the order. Explicit
// selections win, then the customer's saved addresses in order.
func ResolveAddressIDs(form domain.CheckoutFormState, customer domain.Customer) (string, string, error) {
	shippingID := ""
	if form.ShippingSelection.IsExisting() {
		shippingID = form.ShippingSelection.AddressID
	} else if len(customer.Addresses) > 0 {
		shippingID = customer.Addresses[0].ID
	}
	if shippingID == "" {
		return "", "", ErrNoShippingAddress
	}

	switch {
	case !form.SameBilling && form.BillingSelection.IsExisting():
		return shippingID, form.BillingSelection.AddressID, nil
	case form.SameBilling:
		return shippingID, shippingID, nil
	case len(customer.Addresses) > 1 && customer.Addresses[1].ID != "":
		return shippingID, customer.Addresses[1].ID, nil
	default:
		return shippingID, shippingID, nil
	}
}
