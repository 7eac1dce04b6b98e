package yahoo

import "strings"

// DefaultOverrides maps broker symbols whose provider symbol cannot be derived.
var DefaultOverrides = map[string]string{
	"BTl": "BT-A.L", // BT Group Class A shares
	"BT":  "BT-A.L",
}

// ProviderSymbol converts a broker symbol into the provider's symbol.
// Overrides win. A trailing lowercase "l" marks a London listing.
func ProviderSymbol(symbol string, overrides map[string]string) string {
	if mapped, ok := overrides[symbol]; ok {
		return mapped
	}
	if base, ok := strings.CutSuffix(symbol, "l"); ok && base != "" {
		if mapped, ok := overrides[base]; ok {
			return mapped
		}
		return base + ".L"
	}
	return symbol
}

// NormaliseCurrency canonicalises provider currency codes. Pence variants become GBX.
func NormaliseCurrency(currency string) string {
	switch currency {
	case "":
		return "GBP"
	case "GBp", "GBx", "gbx", "GBX":
		return "GBX"
	}
	return strings.ToUpper(currency)
}
