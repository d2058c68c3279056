package gateway

import (
	"testing"

	"boohpay/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestSelect(t *testing.T) {
	cases := []struct {
		country, method string
		want            domain.Gateway
	}{
		{"GA", "MOBILE_MONEY", domain.GatewayEbilling},
		{"ga", "momo", domain.GatewayEbilling},
		{" GA ", "MOMO", domain.GatewayEbilling},
		{"GA", "CARD", domain.GatewayStripe},
		{"SN", "MOBILE_MONEY", domain.GatewayMoneroo},
		{"FR", "MOBILE_MONEY", domain.GatewayMoneroo},
		{"US", "MOMO", domain.GatewayMoneroo},
		{"KE", "BANK_TRANSFER", domain.GatewayMoneroo},
		{"ZA", "USSD", domain.GatewayMoneroo},
		{"SN", "CARD", domain.GatewayStripe},
		{"FR", "CARD", domain.GatewayStripe},
		{"FR", "BANK_TRANSFER", domain.GatewayStripe},
		{"BJ", "USSD", domain.GatewayStripe},
		{"", "", domain.GatewayStripe},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Select(tc.country, tc.method), "%q/%q", tc.country, tc.method)
	}
}

func TestSelectAllAfricanCountries(t *testing.T) {
	for c := range africanCountries {
		assert.Equal(t, domain.GatewayMoneroo, Select(c, "WALLET"), c)
		assert.Equal(t, domain.GatewayStripe, Select(c, "CARD"), c)
	}
}
