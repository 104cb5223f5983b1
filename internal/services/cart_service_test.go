package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func newTestCartService(t *testing.T) CartService {
	t.Helper()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	svc, err := NewCartService(CartServiceDeps{
		Repository:      memory.NewCartRepository(),
		Clock:           func() time.Time { return now },
		DefaultCurrency: "PEN",
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}
	return svc
}

func mugProduct(stock int) domain.Product {
	return domain.Product{
		ID:    "prod-mug",
		Title: "Mug",
		Variants: []domain.Variant{
			{
				ID:                "var-blue",
				Title:             "Blue",
				InventoryQuantity: stock,
				Prices: []domain.VariantPrice{
					{CurrencyID: "PEN", Price: dec("100")},
					{CurrencyID: "USD", Price: dec("27")},
				},
			},
			{
				ID:                "var-red",
				Title:             "Red",
				InventoryQuantity: stock,
				Prices:            []domain.VariantPrice{{CurrencyID: "PEN", Price: dec("50")}},
			},
		},
	}
}

func TestCartServiceAddItemMergesLines(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(10), VariantID: "var-blue", Quantity: 1}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(10), VariantID: "var-blue", Quantity: 2})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected one line with quantity 3, got %+v", cart.Items)
	}
	if cart.CurrencyID != "PEN" {
		t.Fatalf("expected default currency, got %q", cart.CurrencyID)
	}

	total, err := svc.GetTotal(ctx, "s1")
	if err != nil || !total.Equal(dec("300")) {
		t.Fatalf("expected total 300, got %s %v", total, err)
	}
}

func TestCartServiceAddItemClampsToStock(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(3), VariantID: "var-blue", Quantity: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity clamped to 3, got %d", cart.Items[0].Quantity)
	}

	_, err = svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(3), VariantID: "var-blue", Quantity: 1})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCartServiceAddItemValidation(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  AddCartItemCommand
		want error
	}{
		{name: "missing session", cmd: AddCartItemCommand{Product: mugProduct(1), VariantID: "var-blue", Quantity: 1}, want: ErrCartInvalidInput},
		{name: "zero quantity", cmd: AddCartItemCommand{SessionID: "s1", Product: mugProduct(1), VariantID: "var-blue"}, want: ErrCartInvalidInput},
		{name: "unknown variant", cmd: AddCartItemCommand{SessionID: "s1", Product: mugProduct(1), VariantID: "var-green", Quantity: 1}, want: ErrCartInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddItem(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCartServiceRejectsVariantWithoutCartCurrencyPrice(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()
	if _, err := svc.SetCurrency(ctx, "s1", "USD"); err != nil {
		t.Fatalf("set currency on empty cart: %v", err)
	}
	_, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(5), VariantID: "var-red", Quantity: 1})
	if !errors.Is(err, ErrPriceCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestCartServiceUpdateQuantityFloorsAtOne(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(10), VariantID: "var-blue", Quantity: 4}); err != nil {
		t.Fatalf("add: %v", err)
	}

	cart, err := svc.UpdateQuantity(ctx, "s1", "var-blue", 0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cart.Items[0].Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", cart.Items[0].Quantity)
	}
	if _, err := svc.UpdateQuantity(ctx, "s1", "var-none", 2); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestCartServiceRemoveAndClear(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()
	for _, variant := range []string{"var-blue", "var-red"} {
		if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(10), VariantID: variant, Quantity: 1}); err != nil {
			t.Fatalf("add %s: %v", variant, err)
		}
	}

	cart, err := svc.RemoveItem(ctx, "s1", "var-missing")
	if err != nil || len(cart.Items) != 2 {
		t.Fatalf("expected removing a missing line to be a no-op, got %d items %v", len(cart.Items), err)
	}
	cart, err = svc.RemoveItem(ctx, "s1", "var-blue")
	if err != nil || len(cart.Items) != 1 || cart.Items[0].Variant.ID != "var-red" {
		t.Fatalf("unexpected cart after remove %+v %v", cart.Items, err)
	}

	if err := svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cart, err = svc.GetCart(ctx, "s1")
	if err != nil || !cart.IsEmpty() {
		t.Fatalf("expected empty cart, got %+v %v", cart, err)
	}
}

func TestCartServiceSetCurrencyRequiresEveryLinePriced(t *testing.T) {
	svc := newTestCartService(t)
	ctx := context.Background()
	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(10), VariantID: "var-blue", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.SetCurrency(ctx, "s1", "USD")
	if err != nil || cart.CurrencyID != "USD" {
		t.Fatalf("expected USD cart, got %q %v", cart.CurrencyID, err)
	}
	if _, err := svc.SetCurrency(ctx, "s1", "PEN"); err != nil {
		t.Fatalf("back to PEN: %v", err)
	}
	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s1", Product: mugProduct(10), VariantID: "var-red", Quantity: 1}); err != nil {
		t.Fatalf("add red: %v", err)
	}
	if _, err := svc.SetCurrency(ctx, "s1", "USD"); !errors.Is(err, ErrPriceCurrencyMismatch) {
		t.Fatalf("expected mismatch switching with a PEN-only line, got %v", err)
	}
}

type failingCartRepository struct{ err error }

func (r failingCartRepository) GetCart(context.Context, string) (domain.Cart, error) {
	return domain.Cart{}, r.err
}

func (r failingCartRepository) SaveCart(context.Context, domain.Cart) (domain.Cart, error) {
	return domain.Cart{}, r.err
}

func (r failingCartRepository) DeleteCart(context.Context, string) error { return r.err }

func TestCartServiceRepositoryFailureIsUnavailable(t *testing.T) {
	svc, err := NewCartService(CartServiceDeps{
		Repository: failingCartRepository{err: errors.New("redis down")},
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if _, err := svc.GetCart(context.Background(), "s1"); !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
