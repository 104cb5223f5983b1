package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const checkoutSessionCollection = "checkoutSessions"

// CheckoutSessionRepository persists checkout wizard state within Firestore.
type CheckoutSessionRepository struct {
	base *pfirestore.BaseRepository[checkoutSessionDocument]
}

// NewCheckoutSessionRepository constructs a Firestore-backed checkout session repository.
func NewCheckoutSessionRepository(provider *pfirestore.Provider) (*CheckoutSessionRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout session repository requires firestore provider")
	}
	return &CheckoutSessionRepository{
		base: pfirestore.NewBaseRepository[checkoutSessionDocument](provider, checkoutSessionCollection),
	}, nil
}

// SaveSession upserts the session document keyed by session id.
func (r *CheckoutSessionRepository) SaveSession(ctx context.Context, session domain.CheckoutSession) (domain.CheckoutSession, error) {
	if r == nil || r.base == nil {
		return domain.CheckoutSession{}, errors.New("checkout session repository not initialised")
	}
	sessionID := strings.TrimSpace(session.SessionID)
	if sessionID == "" {
		return domain.CheckoutSession{}, errors.New("checkout session repository: session id is required")
	}

	doc := checkoutSessionDocument{
		Step:                string(session.Step),
		Form:                encodeForm(session.Form),
		CustomerID:          session.CustomerID,
		GuestCustomerID:     session.GuestCustomerID,
		GuestAddressIDs:     append([]string(nil), session.GuestAddressIDs...),
		GuestIdempotencyKey: session.GuestIdempotencyKey,
		OrderID:             session.OrderID,
		PaymentRedirectURL:  session.PaymentRedirectURL,
		CreatedAt:           session.CreatedAt.UTC(),
		UpdatedAt:           session.UpdatedAt.UTC(),
	}

	result, err := r.base.Set(ctx, sessionID, doc)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	saved := session.Clone()
	saved.SessionID = sessionID
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetSession loads the session document.
func (r *CheckoutSessionRepository) GetSession(ctx context.Context, sessionID string) (domain.CheckoutSession, error) {
	if r == nil || r.base == nil {
		return domain.CheckoutSession{}, errors.New("checkout session repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	step, err := domain.ParseCheckoutStep(doc.Data.Step)
	if err != nil {
		step = domain.StepCartReview
	}
	return domain.CheckoutSession{
		SessionID:           doc.ID,
		Step:                step,
		Form:                decodeForm(doc.Data.Form),
		CustomerID:          doc.Data.CustomerID,
		GuestCustomerID:     doc.Data.GuestCustomerID,
		GuestAddressIDs:     doc.Data.GuestAddressIDs,
		GuestIdempotencyKey: doc.Data.GuestIdempotencyKey,
		OrderID:             doc.Data.OrderID,
		PaymentRedirectURL:  doc.Data.PaymentRedirectURL,
		CreatedAt:           doc.Data.CreatedAt,
		UpdatedAt:           doc.UpdateTime,
	}, nil
}

// DeleteSession removes the session document.
func (r *CheckoutSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if r == nil || r.base == nil {
		return errors.New("checkout session repository not initialised")
	}
	return r.base.Delete(ctx, strings.TrimSpace(sessionID))
}

func encodeForm(form domain.CheckoutFormState) checkoutFormDocument {
	doc := checkoutFormDocument{
		Customer:          customerFieldsDocument(form.Customer),
		Shipping:          addressFieldsDocument(form.Shipping),
		SameBilling:       form.SameBilling,
		ShippingSelection: selectionDocument(form.ShippingSelection),
		BillingSelection:  selectionDocument(form.BillingSelection),
		ShippingMethodID:  form.ShippingMethodID,
		PaymentProviderID: form.PaymentProviderID,
		Notes:             form.Notes,
		BackupSelection:   selectionDocument(form.BillingBackupSelection),
	}
	if form.Billing != nil {
		billing := addressFieldsDocument(*form.Billing)
		doc.Billing = &billing
	}
	if form.BillingBackup != nil {
		backup := addressFieldsDocument(*form.BillingBackup)
		doc.BillingBackup = &backup
	}
	return doc
}

func decodeForm(doc checkoutFormDocument) domain.CheckoutFormState {
	form := domain.CheckoutFormState{
		Customer:               domain.CustomerFields(doc.Customer),
		Shipping:               domain.AddressFields(doc.Shipping),
		SameBilling:            doc.SameBilling,
		ShippingSelection:      domain.AddressSelection(doc.ShippingSelection),
		BillingSelection:       domain.AddressSelection(doc.BillingSelection),
		ShippingMethodID:       doc.ShippingMethodID,
		PaymentProviderID:      doc.PaymentProviderID,
		Notes:                  doc.Notes,
		BillingBackupSelection: domain.AddressSelection(doc.BackupSelection),
	}
	if doc.Billing != nil {
		billing := domain.AddressFields(*doc.Billing)
		form.Billing = &billing
	}
	if doc.BillingBackup != nil {
		backup := domain.AddressFields(*doc.BillingBackup)
		form.BillingBackup = &backup
	}
	return form
}

type checkoutSessionDocument struct {
	Step                string               `firestore:"step"`
	Form                checkoutFormDocument `firestore:"form"`
	CustomerID          string               `firestore:"customerId,omitempty"`
	GuestCustomerID     string               `firestore:"guestCustomerId,omitempty"`
	GuestAddressIDs     []string             `firestore:"guestAddressIds,omitempty"`
	GuestIdempotencyKey string               `firestore:"guestIdempotencyKey,omitempty"`
	OrderID             string               `firestore:"orderId,omitempty"`
	PaymentRedirectURL  string               `firestore:"paymentRedirectUrl,omitempty"`
	CreatedAt           time.Time            `firestore:"createdAt"`
	UpdatedAt           time.Time            `firestore:"updatedAt"`
}

type checkoutFormDocument struct {
	Customer          customerFieldsDocument `firestore:"customer"`
	Shipping          addressFieldsDocument  `firestore:"shipping"`
	Billing           *addressFieldsDocument `firestore:"billing,omitempty"`
	SameBilling       bool                   `firestore:"sameBilling"`
	ShippingSelection selectionDocument      `firestore:"shippingSelection"`
	BillingSelection  selectionDocument      `firestore:"billingSelection"`
	ShippingMethodID  string                 `firestore:"shippingMethodId,omitempty"`
	PaymentProviderID string                 `firestore:"paymentProviderId,omitempty"`
	Notes             string                 `firestore:"notes,omitempty"`
	BillingBackup     *addressFieldsDocument `firestore:"billingBackup,omitempty"`
	BackupSelection   selectionDocument      `firestore:"billingBackupSelection"`
}

type customerFieldsDocument struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Phone     string `firestore:"phone"`
}

type addressFieldsDocument struct {
	Address1 string `firestore:"address1"`
	Address2 string `firestore:"address2,omitempty"`
	City     string `firestore:"city"`
	Province string `firestore:"province"`
	Zip      string `firestore:"zip"`
	Phone    string `firestore:"phone,omitempty"`
	Company  string `firestore:"company,omitempty"`
}

type selectionDocument struct {
	Mode      domain.AddressMode `firestore:"mode"`
	AddressID string             `firestore:"addressId,omitempty"`
}

var _ repositories.CheckoutSessionRepository = (*CheckoutSessionRepository)(nil)
