package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCartRepositoryRoundTrip(t *testing.T) {
	mr, client := setupRedis(t)
	repo, err := NewCartRepository(client, WithKeyPrefix("test"), WithTTL(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	cart := domain.Cart{
		SessionID:  "sess-1",
		CurrencyID: "PEN",
		Items: []domain.CartItem{{
			Product: domain.ProductRef{ID: "p1", Title: "Mug"},
			Variant: domain.Variant{
				ID:     "v1",
				Title:  "Blue",
				Prices: []domain.VariantPrice{{CurrencyID: "PEN", Price: decimal.RequireFromString("100.00")}},
			},
			Quantity: 2,
		}},
	}

	_, err = repo.SaveCart(ctx, cart)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:cart:sess-1"))
	assert.Equal(t, time.Hour, mr.TTL("test:cart:sess-1"))

	loaded, err := repo.GetCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 2, loaded.Items[0].Quantity)
	assert.True(t, loaded.Items[0].Variant.Prices[0].Price.Equal(decimal.NewFromInt(100)))

	require.NoError(t, repo.DeleteCart(ctx, "sess-1"))
	_, err = repo.GetCart(ctx, "sess-1")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestCartRepositoryInvalidJSON(t *testing.T) {
	mr, client := setupRedis(t)
	repo, err := NewCartRepository(client)
	require.NoError(t, err)

	require.NoError(t, mr.Set("storefront:cart:broken", "{not json"))
	_, err = repo.GetCart(context.Background(), "broken")
	require.Error(t, err)
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.False(t, repoErr.IsNotFound())
}

func TestCartRepositoryUnavailable(t *testing.T) {
	mr, client := setupRedis(t)
	repo, err := NewCartRepository(client)
	require.NoError(t, err)
	mr.Close()

	_, err = repo.GetCart(context.Background(), "sess")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsUnavailable())
}

func TestCheckoutSessionRepositoryRoundTrip(t *testing.T) {
	_, client := setupRedis(t)
	repo, err := NewCheckoutSessionRepository(client)
	require.NoError(t, err)

	ctx := context.Background()
	session := domain.CheckoutSession{
		SessionID:           "sess-2",
		Step:                domain.StepShippingPayment,
		Form:                domain.NewCheckoutFormState(),
		GuestCustomerID:     "cust-1",
		GuestAddressIDs:     []string{"addr-1"},
		GuestIdempotencyKey: "key-1",
	}
	_, err = repo.SaveSession(ctx, session)
	require.NoError(t, err)

	loaded, err := repo.GetSession(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StepShippingPayment, loaded.Step)
	assert.Equal(t, "cust-1", loaded.GuestCustomerID)
	assert.Equal(t, []string{"addr-1"}, loaded.GuestAddressIDs)
	assert.True(t, loaded.Form.SameBilling)
}
