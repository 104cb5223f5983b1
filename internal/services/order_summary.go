package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/hanko-field/storefront/internal/domain"
)

var defaultSummaryLocale = language.LatinAmericanSpanish

// OrderSummaryRenderer turns an order into the sanitised HTML used by notification emails.
type OrderSummaryRenderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	printer  *message.Printer
}

// NewOrderSummaryRenderer builds a renderer that formats amounts for locale.
func NewOrderSummaryRenderer(locale language.Tag) *OrderSummaryRenderer {
	return &OrderSummaryRenderer{
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table)),
		policy:   bluemonday.UGCPolicy(),
		printer:  message.NewPrinter(locale),
	}
}

// OrderSummary is the data rendered into the email body.
type OrderSummary struct {
	OrderID      string
	CustomerName string
	Email        string
	CurrencyCode string
	Lines        []domain.OrderLineItem
	Totals       domain.Totals
	Notes        string
}

// Render produces the HTML body. Every user supplied string is escaped before
// Markdown conversion and the result is passed through the UGC policy.
func (r *OrderSummaryRenderer) Render(summary OrderSummary) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "## Order %s\n\n", escapeMarkdown(summary.OrderID))
	if summary.CustomerName != "" {
		fmt.Fprintf(&md, "Customer: **%s**", escapeMarkdown(summary.CustomerName))
		if summary.Email != "" {
			fmt.Fprintf(&md, " (%s)", escapeMarkdown(summary.Email))
		}
		md.WriteString("\n\n")
	}

	md.WriteString("| Item | Qty | Price |\n|:--|--:|--:|\n")
	for _, line := range summary.Lines {
		fmt.Fprintf(&md, "| %s | %d | %s |\n", escapeMarkdown(line.Title), line.Quantity, r.money(summary.CurrencyCode, line.Price))
	}
	md.WriteString("\n")

	fmt.Fprintf(&md, "- Subtotal: %s\n", r.money(summary.CurrencyCode, summary.Totals.Subtotal))
	taxLabel := "Tax"
	if summary.Totals.TaxesIncluded {
		taxLabel = "Tax (included)"
	}
	fmt.Fprintf(&md, "- %s: %s\n", taxLabel, r.money(summary.CurrencyCode, summary.Totals.Tax))
	fmt.Fprintf(&md, "- Shipping: %s\n", r.money(summary.CurrencyCode, summary.Totals.Shipping))
	fmt.Fprintf(&md, "- **Total: %s**\n", r.money(summary.CurrencyCode, summary.Totals.Total))

	if notes := strings.TrimSpace(summary.Notes); notes != "" {
		fmt.Fprintf(&md, "\n> %s\n", escapeMarkdown(strings.ReplaceAll(notes, "\n", " ")))
	}

	var out bytes.Buffer
	if err := r.markdown.Convert([]byte(md.String()), &out); err != nil {
		return "", fmt.Errorf("order summary: render: %w", err)
	}
	return r.policy.Sanitize(out.String()), nil
}

// money formats amount with the currency symbol when code is a known ISO currency.
func (r *OrderSummaryRenderer) money(code string, amount decimal.Decimal) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return strings.TrimSpace(code + " " + amount.StringFixed(moneyPlaces))
	}
	value, _ := amount.Round(moneyPlaces).Float64()
	return r.printer.Sprint(currency.Symbol(unit.Amount(value)))
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"|", `\|`, "#", `\#`, "<", "&lt;", ">", "&gt;",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.TrimSpace(s))
}
