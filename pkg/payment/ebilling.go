package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"boohpay/internal/currency"
	"boohpay/internal/domain"
	"boohpay/internal/retry"

	"go.uber.org/zap"
)

const (
	ebillingDefaultBaseURL = "https://stg.billing-easy.com/api/v1/merchant"
	ebillingInstructions   = "Un push USSD vient d'être envoyé. Ouvre ton application Mobile Money pour valider le paiement."
)

type EbillingConfig struct {
	Username  string
	SharedKey string
	BaseURL   string
}

// EbillingProvider issues an e-bill and pushes a USSD prompt to a Gabonese mobile money wallet.
type EbillingProvider struct {
	cfg   EbillingConfig
	creds CredentialResolver
	http  *jsonClient
	log   *zap.Logger
}

func NewEbillingProvider(cfg EbillingConfig, creds CredentialResolver, client *http.Client, opts retry.Options, log *zap.Logger) *EbillingProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ebillingDefaultBaseURL
	}
	if creds == nil {
		creds = NoCredentials{}
	}
	return &EbillingProvider{
		cfg:   cfg,
		creds: creds,
		http:  newJSONClient("ebilling", client, opts),
		log:   log.Named("ebilling"),
	}
}

type ebillingBillRequest struct {
	Amount           string `json:"amount"`
	PayerName        string `json:"payer_name"`
	PayerEmail       string `json:"payer_email"`
	PayerMSISDN      string `json:"payer_msisdn"`
	ShortDescription string `json:"short_description"`
	ExternalRef      string `json:"external_reference"`
	ExpiryPeriod     string `json:"expiry_period"`
}

type ebillingBillResponse struct {
	BillID string `json:"bill_id"`
	ID     string `json:"id"`
	Data   struct {
		BillID string `json:"bill_id"`
	} `json:"data"`
	EBill struct {
		BillID string `json:"bill_id"`
	} `json:"e_bill"`
}

func (r ebillingBillResponse) billID() string {
	return firstNonEmpty(r.BillID, r.ID, r.Data.BillID, r.EBill.BillID)
}

type ebillingPushRequest struct {
	PayerMSISDN       string `json:"payer_msisdn"`
	PaymentSystemName string `json:"payment_system_name"`
}

func (p *EbillingProvider) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	phone := firstNonEmpty(req.Customer.Phone, metaString(req.Metadata, "phone"))
	if phone == "" {
		return nil, &RequestError{Provider: "ebilling", Msg: "customer phone number is required for mobile money payments"}
	}
	normalized, err := NormalizeGabonMSISDN(phone)
	if err != nil {
		return nil, &RequestError{Provider: "ebilling", Msg: err.Error()}
	}
	system, err := GabonPaymentSystem(normalized)
	if err != nil {
		return nil, &RequestError{Provider: "ebilling", Msg: err.Error()}
	}
	local := LocalGabonMSISDN(normalized)

	stored, err := p.creds.Credentials(ctx, req.MerchantID, string(domain.GatewayEbilling))
	if err != nil {
		return nil, err
	}
	username := firstNonEmpty(stored.String("username"), p.cfg.Username)
	sharedKey := firstNonEmpty(stored.String("sharedKey"), p.cfg.SharedKey)
	base := strings.TrimRight(firstNonEmpty(stored.String("baseUrl"), p.cfg.BaseURL), "/")
	if username == "" || sharedKey == "" {
		return nil, fmt.Errorf("ebilling: %w", ErrNotConfigured)
	}
	auth := http.Header{}
	auth.Set("Authorization", "Basic "+basicAuth(username, sharedKey))

	bill := ebillingBillRequest{
		Amount:           currency.FormatMajor(req.AmountMinor, req.Currency),
		PayerName:        firstNonEmpty(metaString(req.Metadata, "customerName"), "Client BoohPay"),
		PayerEmail:       firstNonEmpty(req.Customer.Email, "no-reply@boohpay.com"),
		PayerMSISDN:      local,
		ShortDescription: firstNonEmpty(metaString(req.Metadata, "description"), "Commande "+req.OrderID),
		ExternalRef:      req.OrderID,
		ExpiryPeriod:     firstNonEmpty(metaString(req.Metadata, "expiryPeriod"), "60"),
	}
	var created ebillingBillResponse
	if _, err := p.http.do(ctx, http.MethodPost, base+"/e_bills", auth, bill, &created); err != nil {
		p.log.Error("bill creation failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, err
	}
	billID := created.billID()
	if billID == "" {
		return nil, fmt.Errorf("ebilling: bill id missing from response")
	}
	push := ebillingPushRequest{PayerMSISDN: local, PaymentSystemName: system}
	if _, err := p.http.do(ctx, http.MethodPost, base+"/e_bills/"+url.PathEscape(billID)+"/ussd_push", auth, push, nil); err != nil {
		p.log.Error("ussd push failed", zap.String("bill_id", billID), zap.Error(err))
		return nil, err
	}
	p.log.Info("bill created", zap.String("bill_id", billID), zap.String("order_id", req.OrderID), zap.String("system", system))

	return &PaymentResult{
		ProviderReference: billID,
		Status:            domain.PaymentPending,
		Checkout: map[string]any{
			"type":          domain.CheckoutInfo,
			"billId":        billID,
			"paymentSystem": system,
			"instructions":  ebillingInstructions,
		},
		Metadata: map[string]any{
			"provider":      "ebilling",
			"paymentSystem": system,
			"msisdn":        normalized,
		},
	}, nil
}
