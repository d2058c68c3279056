// Package gateway routes a payment to a provider and holds the adapters for each provider.
package gateway

import (
	"strings"

	"boohpay/internal/domain"
)

var africanCountries = map[string]struct{}{
	"SN": {}, "CI": {}, "CM": {}, "GA": {}, "CD": {}, "KE": {},
	"NG": {}, "GH": {}, "UG": {}, "TZ": {}, "RW": {}, "ZA": {},
}

func isMobileMoney(method string) bool {
	return method == domain.MethodMobileMoney || method == domain.MethodMomo
}

// Select picks the gateway for a country and payment method. Rules apply in order:
// Gabonese mobile money goes to eBilling, other mobile money to Moneroo, non-card methods in
// supported African countries to Moneroo, everything else to Stripe.
func Select(countryCode, paymentMethod string) domain.Gateway {
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	method := strings.ToUpper(strings.TrimSpace(paymentMethod))

	if country == "GA" && isMobileMoney(method) {
		return domain.GatewayEbilling
	}
	if isMobileMoney(method) {
		return domain.GatewayMoneroo
	}
	if _, ok := africanCountries[country]; ok && method != domain.MethodCard {
		return domain.GatewayMoneroo
	}
	return domain.GatewayStripe
}
