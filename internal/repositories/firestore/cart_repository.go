package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists session carts within Firestore.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
	}, nil
}

// SaveCart writes the whole cart document using the session id as document identifier.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	sessionID := strings.TrimSpace(cart.SessionID)
	if sessionID == "" {
		return domain.Cart{}, errors.New("cart repository: session id is required")
	}

	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	doc := cartDocument{
		CurrencyID: strings.TrimSpace(cart.CurrencyID),
		Items:      make([]cartItemDocument, 0, len(cart.Items)),
		ItemsCount: cart.ItemCount(),
		UpdatedAt:  updatedAt,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, encodeCartItem(item))
	}

	result, err := r.base.Set(ctx, sessionID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart.Clone()
	saved.SessionID = sessionID
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given session id.
func (r *CartRepository) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.Cart{}, errors.New("cart repository: session id is required")
	}

	doc, err := r.base.Get(ctx, sid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		SessionID:  doc.ID,
		CurrencyID: doc.Data.CurrencyID,
		Items:      make([]domain.CartItem, 0, len(doc.Data.Items)),
		UpdatedAt:  doc.Data.UpdatedAt,
	}
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	for _, item := range doc.Data.Items {
		decoded, err := decodeCartItem(item)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("cart repository: decode %s: %w", sid, err)
		}
		cart.Items = append(cart.Items, decoded)
	}
	return cart, nil
}

// DeleteCart removes the cart document. Deleting a missing cart succeeds.
func (r *CartRepository) DeleteCart(ctx context.Context, sessionID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	return r.base.Delete(ctx, strings.TrimSpace(sessionID))
}

func encodeCartItem(item domain.CartItem) cartItemDocument {
	return cartItemDocument{
		ProductID:         item.Product.ID,
		ProductTitle:      item.Product.Title,
		ProductSlug:       item.Product.Slug,
		ProductImageURL:   item.Product.ImageURL,
		VariantID:         item.Variant.ID,
		VariantTitle:      item.Variant.Title,
		SKU:               item.Variant.SKU,
		InventoryQuantity: item.Variant.InventoryQuantity,
		VariantImageURL:   item.Variant.ImageURL,
		Prices:            encodePrices(item.Variant.Prices),
		Quantity:          item.Quantity,
	}
}

func decodeCartItem(doc cartItemDocument) (domain.CartItem, error) {
	prices, err := decodePrices(doc.Prices)
	if err != nil {
		return domain.CartItem{}, err
	}
	return domain.CartItem{
		Product: domain.ProductRef{
			ID:       doc.ProductID,
			Title:    doc.ProductTitle,
			Slug:     doc.ProductSlug,
			ImageURL: doc.ProductImageURL,
		},
		Variant: domain.Variant{
			ID:                doc.VariantID,
			ProductID:         doc.ProductID,
			Title:             doc.VariantTitle,
			SKU:               doc.SKU,
			InventoryQuantity: doc.InventoryQuantity,
			ImageURL:          doc.VariantImageURL,
			Prices:            prices,
		},
		Quantity: doc.Quantity,
	}, nil
}

// Prices are stored as decimal strings; Firestore floats would lose cents.
func encodePrices(prices []domain.VariantPrice) []priceDocument {
	out := make([]priceDocument, 0, len(prices))
	for _, p := range prices {
		doc := priceDocument{CurrencyID: p.CurrencyID, Price: p.Price.String()}
		if p.OriginalPrice != nil {
			doc.OriginalPrice = p.OriginalPrice.String()
		}
		out = append(out, doc)
	}
	return out
}

func decodePrices(docs []priceDocument) ([]domain.VariantPrice, error) {
	out := make([]domain.VariantPrice, 0, len(docs))
	for _, doc := range docs {
		price, err := decimal.NewFromString(doc.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", doc.Price, err)
		}
		entry := domain.VariantPrice{CurrencyID: doc.CurrencyID, Price: price}
		if doc.OriginalPrice != "" {
			original, err := decimal.NewFromString(doc.OriginalPrice)
			if err != nil {
				return nil, fmt.Errorf("original price %q: %w", doc.OriginalPrice, err)
			}
			entry.OriginalPrice = &original
		}
		out = append(out, entry)
	}
	return out, nil
}

type cartDocument struct {
	CurrencyID string             `firestore:"currencyId"`
	Items      []cartItemDocument `firestore:"items"`
	ItemsCount int                `firestore:"itemsCount"`
	UpdatedAt  time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID         string          `firestore:"productId"`
	ProductTitle      string          `firestore:"productTitle"`
	ProductSlug       string          `firestore:"productSlug,omitempty"`
	ProductImageURL   string          `firestore:"productImageUrl,omitempty"`
	VariantID         string          `firestore:"variantId"`
	VariantTitle      string          `firestore:"variantTitle"`
	SKU               string          `firestore:"sku,omitempty"`
	InventoryQuantity int             `firestore:"inventoryQuantity"`
	VariantImageURL   string          `firestore:"variantImageUrl,omitempty"`
	Prices            []priceDocument `firestore:"prices"`
	Quantity          int             `firestore:"quantity"`
}

type priceDocument struct {
	CurrencyID    string `firestore:"currencyId"`
	Price         string `firestore:"price"`
	OriginalPrice string `firestore:"originalPrice,omitempty"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
