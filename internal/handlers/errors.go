package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/backend"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/services"
	"go.uber.org/zap"
)

const cartPath = "/cart"

// writeServiceError maps service sentinels onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if ve, ok := services.AsValidationError(err); ok {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "checkout form is incomplete", http.StatusBadRequest).WithFields(ve.Fields))
		return
	}

	switch {
	case errors.Is(err, services.ErrCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "your cart is empty", http.StatusConflict).WithRedirect(cartPath))
	case errors.Is(err, domain.ErrInvalidStepTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_step", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_in_progress", "checkout is already being submitted", http.StatusConflict))
	case errors.Is(err, services.ErrBillingLocked):
		httpx.WriteError(ctx, w, httpx.NewError("billing_locked", "billing follows the shipping address", http.StatusConflict))
	case errors.Is(err, services.ErrNoShippingAddress):
		httpx.WriteError(ctx, w, httpx.NewError("no_shipping_address", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "address not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPriceCurrencyMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("currency_mismatch", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrShippingMethodNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_method_not_found", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartItemNotFound), errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrSessionInvalidInput),
		errors.Is(err, services.ErrPriceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSessionUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "email or password is incorrect", http.StatusUnauthorized))
	case isBackendFailure(err):
		logFailure(ctx, err)
		httpx.WriteError(ctx, w, httpx.NewError("backend_error", "the commerce backend rejected the request", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable),
		errors.Is(err, services.ErrCartUnavailable),
		errors.Is(err, services.ErrCatalogUnavailable),
		errors.Is(err, services.ErrSessionUnavailable):
		logFailure(ctx, err)
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "service temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		logFailure(ctx, err)
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

// isBackendFailure reports a non-retryable backend answer: a 4xx other than the
// statuses services already translate.
func isBackendFailure(err error) bool {
	var be *backend.Error
	if !errors.As(err, &be) {
		return false
	}
	return !be.IsUnavailable() && be.Status >= http.StatusBadRequest
}

func logFailure(ctx context.Context, err error) {
	requestctx.Logger(ctx).Warn("request failed", zap.Error(err))
}
