package moneyx

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders amounts for a receipt in a fixed locale/currency pair,
// e.g. Spanish tenants printing EUR receipts.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter builds a Formatter for the given BCP-47 locale tag and
// ISO-4217 currency code (e.g. "es-ES", "EUR").
func NewFormatter(localeTag, currencyCode string) (*Formatter, error) {
	tag, err := language.Parse(localeTag)
	if err != nil {
		return nil, err
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, err
	}
	return &Formatter{
		printer: message.NewPrinter(tag),
		unit:    unit,
	}, nil
}

// Format renders amount (already rounded to cents) with the locale's
// grouping and the currency's symbol, e.g. "12,99 €".
func (f *Formatter) Format(amount float64) string {
	amt := f.unit.Amount(amount)
	return f.printer.Sprint(currency.Symbol(amt))
}
