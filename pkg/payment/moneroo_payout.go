package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"boohpay/internal/currency"
	"boohpay/internal/domain"

	"go.uber.org/zap"
)

var monerooPayoutMethods = map[string]string{
	"mtn_bj": "mtn_bj", "mtn_ci": "mtn_ci", "mtn_cm": "mtn_cm", "mtn_gh": "mtn_gh",
	"mtn_ng": "mtn_ng", "mtn_rw": "mtn_rw", "mtn_ug": "mtn_ug", "mtn_zm": "mtn_zm",
	"moov_bj": "moov_bj", "moov_ci": "moov_ci", "moov_tg": "moov_tg", "moov_ml": "moov_ml",
	"orange_ci": "orange_ci", "orange_cm": "orange_cm", "orange_ml": "orange_ml", "orange_sn": "orange_sn",
	"airtel_ng": "airtel_ng", "airtel_rw": "airtel_rw", "airtel_tz": "airtel_tz", "airtel_ug": "airtel_ug",
	"airtel_zm": "airtel_zm", "mpesa_ke": "mpesa_ke", "wave_ci": "wave_ci", "wave_sn": "wave_sn",
}

// MonerooPayoutMethod maps a payment system name to a Moneroo payout method code.
func MonerooPayoutMethod(system string) string {
	s := strings.ToLower(strings.TrimSpace(system))
	if m, ok := monerooPayoutMethods[s]; ok {
		return m
	}
	switch {
	case strings.Contains(s, "mtn"):
		return "mtn_bj"
	case strings.Contains(s, "moov"):
		return "moov_bj"
	case strings.Contains(s, "orange"):
		return "orange_ci"
	case strings.Contains(s, "airtel"):
		return "airtel_ng"
	}
	return s
}

type monerooPayoutRequest struct {
	Amount      float64         `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Customer    monerooCustomer `json:"customer"`
	Method      string          `json:"method"`
	Recipient   struct {
		MSISDN string `json:"msisdn"`
	} `json:"recipient"`
	Metadata map[string]string `json:"metadata"`
}

func (p *MonerooProvider) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	auth, err := p.resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	msisdn := MonerooMSISDN(req.MSISDN)
	first, last := splitName(req.Metadata)
	email := metaString(req.Metadata, "customerEmail")
	if email == "" {
		email = "payout@boohpay.com"
	}
	description := metaString(req.Metadata, "description")
	if description == "" {
		description = fmt.Sprintf("Payout %s - %s", strings.ToLower(req.PayoutType), req.PayoutID)
	}
	body := monerooPayoutRequest{
		Amount:      currency.MajorFloat(req.AmountMinor, req.Currency),
		Currency:    strings.ToUpper(req.Currency),
		Description: description,
		Customer:    monerooCustomer{Email: email, FirstName: first, LastName: last, Phone: msisdn},
		Method:      MonerooPayoutMethod(req.PaymentSystem),
		Metadata: stringifyMetadata(map[string]string{
			"boohpay_payout_id":  req.PayoutID,
			"external_reference": req.externalReference(),
		}, req.Metadata),
	}
	body.Recipient.MSISDN = msisdn

	var out monerooDataResponse
	if _, err := p.http.do(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/payouts/initialize", bearer(auth.secretKey), body, &out); err != nil {
		p.log.Error("payout initialization failed", zap.String("payout_id", req.PayoutID), zap.Error(err))
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("moneroo: payout response missing id")
	}
	p.log.Info("payout initialized", zap.String("moneroo_id", out.Data.ID), zap.String("payout_id", req.PayoutID))
	return &PayoutResult{
		ProviderReference: out.Data.ID,
		Status:            domain.PayoutPending,
		Metadata: map[string]any{
			"paymentSystem":   req.PaymentSystem,
			"amount":          body.Amount,
			"currency":        body.Currency,
			"monerooPayoutId": out.Data.ID,
		},
	}, nil
}

// GetPayoutStatus asks Moneroo for the current state of a payout it accepted earlier.
func (p *MonerooProvider) GetPayoutStatus(ctx context.Context, merchantID, providerReference string) (*PayoutResult, error) {
	auth, err := p.resolve(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	var out monerooDataResponse
	endpoint := p.cfg.BaseURL + "/v1/payouts/" + url.PathEscape(providerReference) + "/verify"
	if _, err := p.http.do(ctx, http.MethodGet, endpoint, bearer(auth.secretKey), nil, &out); err != nil {
		return nil, err
	}
	return &PayoutResult{
		ProviderReference: providerReference,
		Status:            MapPayoutState(out.Data.Status),
		Metadata:          map[string]any{"monerooStatus": out.Data.Status},
	}, nil
}

// MapPayoutState maps a provider payout state to a payout status, or "" when unknown.
func MapPayoutState(state string) domain.PayoutStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "success", "successful":
		return domain.PayoutSucceeded
	case "pending", "processing":
		return domain.PayoutProcessing
	case "failed", "error":
		return domain.PayoutFailed
	}
	return ""
}
