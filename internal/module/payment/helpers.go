package payment

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Card brands returned by DetectCardBrand.
const (
	BrandVisa       = "visa"
	BrandMastercard = "mastercard"
	BrandAmex       = "amex"
	BrandDiscover   = "discover"
	BrandUnknown    = "unknown"
)

// StripNonDigits removes everything except digits from a card number input.
func StripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCardNumber runs the Luhn check over a card number. Spaces and
// dashes are tolerated.
func ValidateCardNumber(number string) bool {
	digits := StripNonDigits(number)
	if len(digits) < 12 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// DetectCardBrand identifies the card network from the leading digits.
func DetectCardBrand(number string) string {
	digits := StripNonDigits(number)
	if len(digits) < 2 {
		return BrandUnknown
	}

	two := digits[:2]
	switch {
	case digits[0] == '4':
		return BrandVisa
	case two == "34" || two == "37":
		return BrandAmex
	case two >= "51" && two <= "55", two >= "22" && two <= "27":
		return BrandMastercard
	case strings.HasPrefix(digits, "6011"), two == "65":
		return BrandDiscover
	default:
		return BrandUnknown
	}
}

// MaskCardNumber keeps the first four and last four digits and masks the
// rest, for display and for 3DS authentication requests.
func MaskCardNumber(number string) string {
	digits := StripNonDigits(number)
	if len(digits) <= 8 {
		return strings.Repeat("*", len(digits))
	}
	return digits[:4] + strings.Repeat("*", len(digits)-8) + digits[len(digits)-4:]
}

// FormatCardNumber inserts display grouping: 4-6-5 for amex, groups of four
// otherwise. Stripping non-digits from the output reproduces the input
// digit sequence.
func FormatCardNumber(number string) string {
	digits := StripNonDigits(number)
	if DetectCardBrand(digits) == BrandAmex && len(digits) == 15 {
		return digits[:4] + " " + digits[4:10] + " " + digits[10:]
	}

	var groups []string
	for i := 0; i < len(digits); i += 4 {
		end := i + 4
		if end > len(digits) {
			end = len(digits)
		}
		groups = append(groups, digits[i:end])
	}
	return strings.Join(groups, " ")
}

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true, "ISK": true,
}

var currencySymbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "JPY": "¥", "AUD": "A$", "CAD": "C$",
}

// FormatCurrency renders an amount in minor units for display.
func FormatCurrency(amount int64, currency string) string {
	cur := strings.ToUpper(currency)
	symbol, ok := currencySymbols[cur]
	if !ok {
		symbol = cur + " "
	}
	if zeroDecimalCurrencies[cur] {
		return fmt.Sprintf("%s%d", symbol, amount)
	}
	return fmt.Sprintf("%s%d.%02d", symbol, amount/100, amount%100)
}

// ValidCurrency reports whether the currency is a 3-letter alphabetic code.
func ValidCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, r := range currency {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// eeaCurrencies are currencies of markets where PSD2 strong customer
// authentication applies.
var eeaCurrencies = map[string]bool{
	"EUR": true, "GBP": true, "SEK": true, "DKK": true, "NOK": true,
	"PLN": true, "CZK": true, "HUF": true, "RON": true, "BGN": true,
}

// scaExemptionThreshold is the low-value exemption limit in minor units
// (30.00 in the transaction currency).
const scaExemptionThreshold = 3000

// RequiresSCA reports whether a transaction needs strong customer
// authentication: an EEA-market currency above the low-value exemption.
func RequiresSCA(amount int64, currency string) bool {
	if !eeaCurrencies[strings.ToUpper(currency)] {
		return false
	}
	return amount > scaExemptionThreshold
}

// ValidateExpiry reports whether a card expiry is in the future. Month is
// 1-12; year is four digits.
func ValidateExpiry(month, year int) bool {
	if month < 1 || month > 12 {
		return false
	}
	now := time.Now()
	if year < now.Year() {
		return false
	}
	if year == now.Year() && month < int(now.Month()) {
		return false
	}
	return true
}
