package liquid

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/aryan0dhankhar/storefront/internal/domain"
	"github.com/aryan0dhankhar/storefront/pkg/textutil"
)

var errNoPlaceholder = errors.New("money format has no amount placeholder")

var currencySymbols = map[string]string{
	"USD": "$", "CAD": "$", "AUD": "$", "NZD": "$", "SGD": "$", "HKD": "$", "MXN": "$",
	"EUR": "€", "GBP": "£", "JPY": "¥", "CNY": "¥", "INR": "₹", "KRW": "₩",
	"BRL": "R$", "CHF": "CHF ", "SEK": "kr ", "NOK": "kr ", "DKK": "kr ", "PLN": "zł ",
}

// MoneyFormatter renders an amount in minor units
type MoneyFormatter interface {
	Format(cents int64, format string, cfg domain.CurrencyConfig) (string, error)
}

// FormatStringMoney substitutes Shopify-style amount placeholders
// ({{amount}}, {{amount_no_decimals}}, {{amount_with_comma_separator}},
// {{amount_no_decimals_with_comma_separator}},
// {{amount_with_apostrophe_separator}}) in a store format string
type FormatStringMoney struct{}

func (FormatStringMoney) Format(cents int64, format string, cfg domain.CurrencyConfig) (string, error) {
	if !strings.Contains(format, "{{") {
		return "", errNoPlaceholder
	}
	dp := cfg.DecimalPlaces
	if dp < 0 {
		dp = 2
	}
	replacements := []struct {
		placeholder string
		value       func() string
	}{
		{"amount_no_decimals_with_comma_separator", func() string { return groupDigits(cents, dp, 0, ".", ",") }},
		{"amount_with_comma_separator", func() string { return groupDigits(cents, dp, dp, ".", ",") }},
		{"amount_with_apostrophe_separator", func() string { return groupDigits(cents, dp, dp, "'", ".") }},
		{"amount_no_decimals", func() string { return groupDigits(cents, dp, 0, ",", ".") }},
		{"amount", func() string { return groupDigits(cents, dp, dp, ",", ".") }},
	}
	out := format
	matched := false
	for _, r := range replacements {
		for _, token := range []string{"{{" + r.placeholder + "}}", "{{ " + r.placeholder + " }}"} {
			if strings.Contains(out, token) {
				out = strings.ReplaceAll(out, token, r.value())
				matched = true
			}
		}
	}
	if !matched {
		return "", errNoPlaceholder
	}
	return out, nil
}

// LocaleMoney formats with the store locale's number conventions and a
// currency symbol. It ignores the format string.
type LocaleMoney struct{}

func (LocaleMoney) Format(cents int64, _ string, cfg domain.CurrencyConfig) (string, error) {
	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	dp := cfg.DecimalPlaces
	if dp < 0 {
		dp = 2
	}
	amount := float64(cents) / math.Pow10(dp)
	p := message.NewPrinter(tag)
	num := p.Sprint(number.Decimal(amount, number.Scale(dp)))
	symbol, ok := currencySymbols[strings.ToUpper(cfg.Code)]
	if !ok {
		return num + " " + strings.ToUpper(cfg.Code), nil
	}
	return symbol + num, nil
}

// groupDigits renders an amount held in minor units with srcDP decimals
// using outDP decimals, a thousands separator and a decimal mark
func groupDigits(cents int64, srcDP, outDP int, thousands, decimal string) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	if outDP < srcDP {
		div := math.Pow10(srcDP - outDP)
		cents = int64(math.Round(float64(cents) / div))
	}
	scale := int64(math.Pow10(outDP))
	whole := cents / scale
	frac := cents % scale

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(thousands)
		}
		b.WriteRune(r)
	}
	if outDP > 0 {
		b.WriteString(decimal)
		b.WriteString(fmt.Sprintf("%0*d", outDP, frac))
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// moneyFilter binds a formatter to a filter name and a format selector
type moneyFilter struct {
	name      string
	formatter MoneyFormatter
	cfg       domain.CurrencyConfig
	format    func(cfg domain.CurrencyConfig) string
}

func (m moneyFilter) Name() string { return m.name }

// Apply formats input. An explicit argument overrides the ambient config:
// a value containing "{{" is a format string, anything else a currency code.
func (m moneyFilter) Apply(input any, args []any) (any, error) {
	cents, ok := toCents(input)
	if !ok {
		return input, nil
	}
	cfg := m.cfg
	format := m.format(cfg)
	if a, ok := arg(args, 0).(string); ok && a != "" {
		if strings.Contains(a, "{{") {
			format = a
		} else {
			cfg.Code = strings.ToUpper(a)
			format = currencyFormat(cfg.Code, m.name == "money_with_currency")
		}
	}
	return m.formatter.Format(cents, format, cfg)
}

// wholeAmounts drops the decimals of amounts with no fractional part and
// leaves every other amount untouched
func wholeAmounts(f MoneyFormatter) MoneyFormatter { return trimmedZeros{f} }

type trimmedZeros struct{ MoneyFormatter }

func (t trimmedZeros) Format(cents int64, format string, cfg domain.CurrencyConfig) (string, error) {
	dp := cfg.DecimalPlaces
	if dp < 0 {
		dp = 2
	}
	if scale := int64(math.Pow10(dp)); dp > 0 && cents%scale == 0 {
		cfg.DecimalPlaces = 0
		return t.MoneyFormatter.Format(cents/scale, format, cfg)
	}
	return t.MoneyFormatter.Format(cents, format, cfg)
}

func currencyFormat(code string, withCode bool) string {
	sym, ok := currencySymbols[code]
	if !ok {
		return "{{amount}} " + code
	}
	if withCode {
		return sym + "{{amount}} " + code
	}
	return sym + "{{amount}}"
}

// supportsFormatString reports whether the format-string strategy can serve
// the store's configured formats
func supportsFormatString(cfg domain.CurrencyConfig) bool {
	_, err := FormatStringMoney{}.Format(100, cfg.MoneyFormat, cfg)
	return err == nil
}

func (e *Engine) moneyFilters() []Filter {
	cfg := e.env.Currency
	var formatter MoneyFormatter = LocaleMoney{}
	primaryCapable := supportsFormatString(cfg)

	buildWith := func(name string, format func(domain.CurrencyConfig) string, wrap func(MoneyFormatter) MoneyFormatter) Filter {
		locale := moneyFilter{name: name, formatter: wrap(formatter), cfg: cfg, format: format}
		if !primaryCapable {
			return locale
		}
		primary := moneyFilter{name: name, formatter: wrap(FormatStringMoney{}), cfg: cfg, format: format}
		return WithFallback(primary, locale, e.logger)
	}
	build := func(name string, format func(domain.CurrencyConfig) string) Filter {
		return buildWith(name, format, func(f MoneyFormatter) MoneyFormatter { return f })
	}

	withCurrency := func(c domain.CurrencyConfig) string {
		if c.MoneyWithCurrencyFormat != "" {
			return c.MoneyWithCurrencyFormat
		}
		return c.MoneyFormat + " " + c.Code
	}

	money := build("money", func(c domain.CurrencyConfig) string { return c.MoneyFormat })
	return []Filter{
		money,
		build("money_with_currency", withCurrency),
		build("money_without_currency", func(domain.CurrencyConfig) string { return "{{amount}}" }),
		buildWith("money_without_trailing_zeros", func(c domain.CurrencyConfig) string { return c.MoneyFormat }, wholeAmounts),
	}
}

// FormatMoney formats cents with the store's money format, used by data
// transforms outside templates
func FormatMoney(cents int64, cfg domain.CurrencyConfig) string {
	if out, err := (FormatStringMoney{}).Format(cents, cfg.MoneyFormat, cfg); err == nil {
		return out
	}
	out, _ := LocaleMoney{}.Format(cents, "", cfg)
	return out
}

func toCents(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return int64(math.Round(float64(n))), true
	case float64:
		return int64(math.Round(n)), true
	case string:
		f, ok := parseNumber(n)
		return int64(math.Round(f)), ok
	case nil:
		return 0, false
	}
	return 0, false
}

func parseNumber(s string) (float64, bool) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f)
	return f, err == nil
}

// handle is used by the handle filters and data transforms alike
func handle(v any) string {
	return textutil.Handleize(toString(v))
}
