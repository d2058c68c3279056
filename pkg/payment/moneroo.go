package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"boohpay/internal/currency"
	"boohpay/internal/domain"
	"boohpay/internal/retry"

	"go.uber.org/zap"
)

const monerooDefaultBaseURL = "https://api.moneroo.io"

type MonerooConfig struct {
	SecretKey string
	BaseURL   string
	ReturnURL string
}

// MonerooProvider creates Moneroo checkouts, refunds and mobile money payouts.
type MonerooProvider struct {
	cfg   MonerooConfig
	creds CredentialResolver
	http  *jsonClient
	log   *zap.Logger
}

func NewMonerooProvider(cfg MonerooConfig, creds CredentialResolver, client *http.Client, opts retry.Options, log *zap.Logger) *MonerooProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = monerooDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if creds == nil {
		creds = NoCredentials{}
	}
	return &MonerooProvider{
		cfg:   cfg,
		creds: creds,
		http:  newJSONClient("moneroo", client, opts),
		log:   log.Named("moneroo"),
	}
}

type monerooAuth struct {
	secretKey string
	sandbox   bool
}

func (p *MonerooProvider) resolve(ctx context.Context, merchantID string) (monerooAuth, error) {
	stored, err := p.creds.Credentials(ctx, merchantID, string(domain.GatewayMoneroo))
	if err != nil {
		return monerooAuth{}, err
	}
	key := firstNonEmpty(stored.String("secretKey"), p.cfg.SecretKey)
	if key == "" {
		return monerooAuth{}, fmt.Errorf("moneroo: %w", ErrNotConfigured)
	}
	env := stored.String("environment")
	sandbox := env == "sandbox" || strings.Contains(key, "test") || strings.Contains(key, "sandbox")
	return monerooAuth{secretKey: key, sandbox: sandbox}, nil
}

var monerooCountryMethods = map[string][]string{
	"BJ": {"mtn_bj", "moov_bj"},
	"CI": {"mtn_ci", "moov_ci", "orange_ci", "wave_ci"},
	"CM": {"mtn_cm", "orange_cm"},
	"GA": {"mtn_cm", "orange_cm"},
	"SN": {"orange_sn", "wave_sn", "wizall_sn", "freemoney_sn"},
	"TG": {"moov_tg", "togocel"},
	"ML": {"orange_ml", "moov_ml"},
	"NG": {"mtn_ng", "qr_ngn", "ussd_ngn"},
	"GH": {"mtn_gh", "tigo_gh", "vodafone_gh"},
	"KE": {"mpesa_ke"},
	"UG": {"mtn_ug", "airtel_ug"},
	"RW": {"mtn_rw", "airtel_rw"},
	"TZ": {"halopesa_tz", "mpesa_tz", "tigo_tz"},
	"ZM": {"mtn_zm", "airtel_zm", "zamtel_zm"},
}

type monerooCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

type monerooInitRequest struct {
	Amount              float64           `json:"amount"`
	Currency            string            `json:"currency"`
	Description         string            `json:"description"`
	Customer            monerooCustomer   `json:"customer"`
	ReturnURL           string            `json:"return_url"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Methods             []string          `json:"methods,omitempty"`
	RestrictCountryCode string            `json:"restrict_country_code,omitempty"`
}

type monerooDataResponse struct {
	Message string `json:"message"`
	Data    struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
		Status      string `json:"status"`
	} `json:"data"`
}

func splitName(meta map[string]any) (string, string) {
	name := metaString(meta, "customerName")
	if name == "" {
		name = "Client BoohPay"
	}
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	if first == "" {
		first = "Client"
	}
	if last = strings.TrimSpace(last); last == "" {
		last = "BoohPay"
	}
	return first, last
}

func (p *MonerooProvider) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	auth, err := p.resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	cur := strings.ToUpper(req.Currency)
	isXOF := cur == "XOF"

	first, last := splitName(req.Metadata)
	email := req.Customer.Email
	if email == "" {
		email = "customer@example.com"
	}
	description := metaString(req.Metadata, "description")
	if description == "" {
		description = "Payment for order " + req.OrderID
	}
	returnURL := firstNonEmpty(req.ReturnURL, p.cfg.ReturnURL)
	returnURL = strings.NewReplacer("?payment_id={payment_id}", "", "&payment_id={payment_id}", "", "{payment_id}", "").Replace(returnURL)
	returnURL = strings.TrimRight(returnURL, "?&")

	body := monerooInitRequest{
		Amount:      currency.MajorFloat(req.AmountMinor, cur),
		Currency:    cur,
		Description: description,
		Customer: monerooCustomer{
			Email:     email,
			FirstName: first,
			LastName:  last,
			Phone:     DigitsOnly(req.Customer.Phone),
		},
		ReturnURL: returnURL,
		Metadata: stringifyMetadata(map[string]string{
			"boohpay_payment_id": req.PaymentID,
			"order_id":           req.OrderID,
		}, req.Metadata),
	}
	// Moneroo rejects methods together with restrict_country_code. Sandbox accounts and XOF mobile money
	// get no restriction.
	country := strings.ToUpper(req.CountryCode)
	mobile := req.PaymentMethod == domain.MethodMobileMoney
	switch {
	case auth.sandbox || country == "":
	case mobile && isXOF:
	case mobile && len(monerooCountryMethods[country]) > 0:
		body.Methods = monerooCountryMethods[country]
	default:
		body.RestrictCountryCode = country
	}

	var out monerooDataResponse
	if _, err := p.http.do(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/payments/initialize", bearer(auth.secretKey), body, &out); err != nil {
		p.log.Error("payment initialization failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, err
	}
	if out.Data.ID == "" || out.Data.CheckoutURL == "" {
		return nil, fmt.Errorf("moneroo: response missing payment id or checkout url")
	}
	p.log.Info("payment initialized", zap.String("moneroo_id", out.Data.ID), zap.String("order_id", req.OrderID))

	env := "production"
	if auth.sandbox {
		env = "sandbox"
	}
	return &PaymentResult{
		ProviderReference: out.Data.ID,
		Status:            domain.PaymentPending,
		Checkout: map[string]any{
			"type": domain.CheckoutRedirect,
			"url":  out.Data.CheckoutURL,
		},
		Metadata: map[string]any{
			"provider":    "moneroo",
			"paymentId":   out.Data.ID,
			"checkoutUrl": out.Data.CheckoutURL,
			"environment": env,
		},
	}, nil
}

type monerooRefundRequest struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Reason    string  `json:"reason"`
}

func (p *MonerooProvider) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	auth, err := p.resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = "Customer request"
	}
	body := monerooRefundRequest{
		PaymentID: req.ProviderReference,
		Amount:    currency.MajorFloat(req.AmountMinor, req.Currency),
		Currency:  strings.ToUpper(req.Currency),
		Reason:    reason,
	}
	var out monerooDataResponse
	if _, err := p.http.do(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/refunds", bearer(auth.secretKey), body, &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("moneroo: refund response missing id")
	}
	return &RefundResult{
		ProviderReference: out.Data.ID,
		Status:            monerooRefundStatus(out.Data.Status),
		Metadata:          map[string]any{"provider": "moneroo", "refundStatus": out.Data.Status},
	}, nil
}

func monerooRefundStatus(s string) domain.RefundStatus {
	switch strings.ToLower(s) {
	case "success", "completed":
		return domain.RefundSucceeded
	case "pending":
		return domain.RefundPending
	case "failed":
		return domain.RefundFailed
	}
	return domain.RefundProcessing
}
