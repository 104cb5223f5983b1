package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartItemNotFound indicates no cart line exists for the variant.
	ErrCartItemNotFound = errors.New("cart service: item not found")
	// ErrCartInsufficientStock indicates the variant has no inventory left to add.
	ErrCartInsufficientStock = errors.New("cart service: insufficient stock")
	// ErrCartUnavailable indicates the cart store failed.
	ErrCartUnavailable = errors.New("cart service: unavailable")
)

// CartServiceDeps wires the cart ledger.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		repo:     deps.Repository,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: strings.TrimSpace(deps.DefaultCurrency),
		logger:   logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.Cart{}, fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	return s.load(ctx, sid)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (domain.Cart, error) {
	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" || strings.TrimSpace(cmd.Product.ID) == "" {
		return domain.Cart{}, fmt.Errorf("%w: session and product are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	variant, ok := cmd.Product.Variant(cmd.VariantID)
	if !ok {
		return domain.Cart{}, fmt.Errorf("%w: variant %q not in product %q", ErrCartInvalidInput, cmd.VariantID, cmd.Product.ID)
	}

	cart, err := s.load(ctx, sid)
	if err != nil {
		return domain.Cart{}, err
	}
	if _, err := resolveVariantPrice(variant, cart.CurrencyID); err != nil {
		return domain.Cart{}, err
	}

	idx := -1
	for i, item := range cart.Items {
		if item.Product.ID == cmd.Product.ID && item.Variant.ID == variant.ID {
			idx = i
			break
		}
	}
	existing := 0
	if idx >= 0 {
		existing = cart.Items[idx].Quantity
	}

	increment := cmd.Quantity
	if stock := variant.InventoryQuantity; stock > 0 && existing+increment > stock {
		increment = stock - existing
		if increment <= 0 {
			return domain.Cart{}, fmt.Errorf("%w: variant %s has %d in stock", ErrCartInsufficientStock, variant.ID, stock)
		}
		s.logger(ctx, "cart.quantity_clamped", map[string]any{
			"sessionId": sid,
			"variantId": variant.ID,
			"requested": cmd.Quantity,
			"added":     increment,
		})
	}

	if idx >= 0 {
		cart.Items[idx].Quantity = existing + increment
		cart.Items[idx].Variant = variant.Clone()
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			Product:  cmd.Product.Ref(),
			Variant:  variant.Clone(),
			Quantity: increment,
		})
	}
	return s.save(ctx, cart)
}

func (s *cartService) UpdateQuantity(ctx context.Context, sessionID, variantID string, quantity int) (domain.Cart, error) {
	cart, idx, err := s.findLine(ctx, sessionID, variantID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items[idx].Quantity = max(1, quantity)
	return s.save(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, sessionID, variantID string) (domain.Cart, error) {
	cart, idx, err := s.findLine(ctx, sessionID, variantID)
	if errors.Is(err, ErrCartItemNotFound) {
		return cart, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return s.save(ctx, cart)
}

func (s *cartService) Clear(ctx context.Context, sessionID string) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return fmt.Errorf("%w: session id is required", ErrCartInvalidInput)
	}
	cart, err := s.load(ctx, sid)
	if err != nil {
		return err
	}
	cart.Items = nil
	_, err = s.save(ctx, cart)
	return err
}

func (s *cartService) GetTotal(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	return CartSubtotal(cart)
}

// SetCurrency switches the cart currency. Every line must be priced in the new currency.
func (s *cartService) SetCurrency(ctx context.Context, sessionID, currencyID string) (domain.Cart, error) {
	currencyID = strings.TrimSpace(currencyID)
	if currencyID == "" {
		return domain.Cart{}, fmt.Errorf("%w: currency is required", ErrCartInvalidInput)
	}
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return domain.Cart{}, err
	}
	for _, item := range cart.Items {
		if _, err := resolveVariantPrice(item.Variant, currencyID); err != nil {
			return domain.Cart{}, err
		}
	}
	cart.CurrencyID = currencyID
	return s.save(ctx, cart)
}

func (s *cartService) findLine(ctx context.Context, sessionID, variantID string) (domain.Cart, int, error) {
	sid := strings.TrimSpace(sessionID)
	vid := strings.TrimSpace(variantID)
	if sid == "" || vid == "" {
		return domain.Cart{}, -1, fmt.Errorf("%w: session and variant are required", ErrCartInvalidInput)
	}
	cart, err := s.load(ctx, sid)
	if err != nil {
		return domain.Cart{}, -1, err
	}
	for i, item := range cart.Items {
		if item.Variant.ID == vid {
			return cart, i, nil
		}
	}
	return cart, -1, fmt.Errorf("%w: %s", ErrCartItemNotFound, vid)
}

func (s *cartService) load(ctx context.Context, sessionID string) (domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, sessionID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Cart{SessionID: sessionID, CurrencyID: s.currency, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	if cart.CurrencyID == "" {
		cart.CurrencyID = s.currency
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	cart.UpdatedAt = s.now()
	saved, err := s.repo.SaveCart(ctx, cart)
	if err != nil {
		s.logger(ctx, "cart.save_failed", map[string]any{"sessionId": cart.SessionID, "error": err})
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	if saved.Items == nil {
		saved.Items = []domain.CartItem{}
	}
	return saved, nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
