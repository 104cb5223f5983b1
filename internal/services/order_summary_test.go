package services

import (
	"strings"
	"testing"

	"golang.org/x/text/language"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestOrderSummaryRenderer(t *testing.T) {
	r := NewOrderSummaryRenderer(language.English)
	html, err := r.Render(OrderSummary{
		OrderID:      "order-1",
		CustomerName: "Ana <b>Quispe</b>",
		Email:        "ana@example.com",
		CurrencyCode: "USD",
		Lines: []domain.OrderLineItem{
			{Title: "Mug | Blue", Price: dec("12.5"), Quantity: 2},
		},
		Totals: domain.Totals{
			Subtotal: dec("25"),
			Tax:      dec("4.5"),
			Shipping: dec("3"),
			Total:    dec("32.5"),
		},
		Notes: "<script>alert(1)</script>ring twice",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"<table>", "Order order-1", "Mug | Blue", "32.50", "ring twice"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in:\n%s", want, html)
		}
	}
	for _, banned := range []string{"<script", "<b>"} {
		if strings.Contains(html, banned) {
			t.Fatalf("unexpected %q in:\n%s", banned, html)
		}
	}
}

func TestOrderSummaryRendererUnknownCurrency(t *testing.T) {
	r := NewOrderSummaryRenderer(language.English)
	got := r.money("XYZ1", dec("10"))
	if got != "XYZ1 10.00" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
