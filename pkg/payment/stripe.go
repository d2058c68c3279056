package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"boohpay/internal/currency"
	"boohpay/internal/domain"
	"boohpay/internal/retry"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	// APIURL overrides the Stripe API endpoint. Empty means api.stripe.com.
	APIURL string
}

// StripeProvider creates PaymentIntents, refunds and Connect transfers.
type StripeProvider struct {
	cfg   StripeConfig
	creds CredentialResolver
	retry retry.Options
	log   *zap.Logger
}

func NewStripeProvider(cfg StripeConfig, creds CredentialResolver, opts retry.Options, log *zap.Logger) *StripeProvider {
	if creds == nil {
		creds = NoCredentials{}
	}
	return &StripeProvider{cfg: cfg, creds: creds, retry: opts, log: log.Named("stripe")}
}

func (p *StripeProvider) client(key string) *client.API {
	if p.cfg.APIURL == "" {
		return client.New(key, nil)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(p.cfg.APIURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return client.New(key, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
}

type stripeAccount struct {
	api       *client.API
	connectID string
	own       bool
}

// resolve picks the merchant's own key when stored, otherwise the platform key acting on the
// merchant's Connect account when one is stored.
func (p *StripeProvider) resolve(ctx context.Context, merchantID string) (stripeAccount, error) {
	stored, err := p.creds.Credentials(ctx, merchantID, string(domain.GatewayStripe))
	if err != nil {
		return stripeAccount{}, err
	}
	if own := stored.String("secretKey"); own != "" {
		return stripeAccount{api: p.client(own), own: true}, nil
	}
	if p.cfg.SecretKey == "" {
		return stripeAccount{}, fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	return stripeAccount{api: p.client(p.cfg.SecretKey), connectID: stored.String("connectAccountId")}, nil
}

func (a stripeAccount) apply(ctx context.Context, params *stripe.Params) {
	params.Context = ctx
	if a.connectID != "" {
		params.SetStripeAccount(a.connectID)
	}
}

// stripeErr exposes a Stripe API error's status to the retry classifier.
func stripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode != 0 {
		return &HTTPError{Provider: "stripe", StatusCode: se.HTTPStatusCode, Body: string(se.Code) + " " + se.Msg}
	}
	return err
}

func (p *StripeProvider) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	acc, err := p.resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	if p.cfg.PublishableKey == "" {
		return nil, fmt.Errorf("stripe: publishable key: %w", ErrNotConfigured)
	}

	amount := req.AmountMinor
	cur := strings.ToLower(req.Currency)
	rate := "1"
	if currency.IsCFA(req.Currency) {
		amount = currency.CFAToEuroCents(req.AmountMinor)
		cur = "eur"
		rate = currency.CFAPerEuro.String()
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(cur),
		Description: stripe.String("Order " + req.OrderID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}
	for k, v := range stringifyMetadata(nil, req.Metadata) {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("boohpay_payment_id", req.PaymentID)
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("original_currency", strings.ToUpper(req.Currency))
	params.AddMetadata("original_amount", strconv.FormatInt(req.AmountMinor, 10))
	params.AddMetadata("conversion_rate", rate)
	params.SetIdempotencyKey("boohpay_pi_" + req.PaymentID)
	acc.apply(ctx, &params.Params)

	intent, err := retry.Do(ctx, func(context.Context) (*stripe.PaymentIntent, error) {
		pi, err := acc.api.PaymentIntents.New(params)
		return pi, stripeErr(err)
	}, p.retry)
	if err != nil {
		p.log.Error("payment intent creation failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, err
	}

	checkout := map[string]any{
		"type":           domain.CheckoutClientSecret,
		"clientSecret":   intent.ClientSecret,
		"publishableKey": p.cfg.PublishableKey,
	}
	if acc.connectID != "" {
		checkout["stripeAccount"] = acc.connectID
	}
	return &PaymentResult{
		ProviderReference: intent.ID,
		Status:            StripeIntentStatus(string(intent.Status)),
		Checkout:          checkout,
		Metadata: map[string]any{
			"provider":            "stripe",
			"paymentIntentStatus": string(intent.Status),
			"merchantSpecific":    acc.own,
			"connectAccountId":    acc.connectID,
		},
	}, nil
}

// StripeIntentStatus maps a PaymentIntent status returned at creation time.
func StripeIntentStatus(s string) domain.PaymentStatus {
	switch stripe.PaymentIntentStatus(s) {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.PaymentSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return domain.PaymentAuthorized
	}
	return domain.PaymentPending
}

func (p *StripeProvider) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	acc, err := p.resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	getParams := &stripe.PaymentIntentParams{}
	acc.apply(ctx, &getParams.Params)
	intent, err := acc.api.PaymentIntents.Get(req.ProviderReference, getParams)
	if err != nil {
		return nil, stripeErr(err)
	}
	if intent.LatestCharge == nil || intent.LatestCharge.ID == "" {
		return nil, &RequestError{Provider: "stripe", Msg: "no charge found for payment intent"}
	}

	params := &stripe.RefundParams{
		Charge: stripe.String(intent.LatestCharge.ID),
		Amount: stripe.Int64(req.AmountMinor),
	}
	switch req.Reason {
	case string(stripe.RefundReasonDuplicate), string(stripe.RefundReasonFraudulent), string(stripe.RefundReasonRequestedByCustomer):
		params.Reason = stripe.String(req.Reason)
	}
	params.SetIdempotencyKey("boohpay_refund_" + req.RefundID)
	acc.apply(ctx, &params.Params)

	refund, err := retry.Do(ctx, func(context.Context) (*stripe.Refund, error) {
		r, err := acc.api.Refunds.New(params)
		return r, stripeErr(err)
	}, p.retry)
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		ProviderReference: refund.ID,
		Status:            StripeRefundStatus(string(refund.Status)),
		Metadata: map[string]any{
			"provider":     "stripe",
			"refundStatus": string(refund.Status),
			"chargeId":     intent.LatestCharge.ID,
		},
	}, nil
}

func StripeRefundStatus(s string) domain.RefundStatus {
	switch stripe.RefundStatus(s) {
	case stripe.RefundStatusSucceeded:
		return domain.RefundSucceeded
	case stripe.RefundStatusPending:
		return domain.RefundProcessing
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return domain.RefundFailed
	}
	return domain.RefundProcessing
}

// CreatePayout transfers funds to the Connect account named in metadata.stripeAccountId.
func (p *StripeProvider) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	dest := metaString(req.Metadata, "stripeAccountId")
	if dest == "" {
		return nil, &RequestError{Provider: "stripe", Msg: "stripe payouts require metadata.stripeAccountId (a connected account)"}
	}
	acc, err := p.resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(dest),
	}
	params.AddMetadata("boohpay_payout_id", req.PayoutID)
	params.AddMetadata("external_reference", req.externalReference())
	params.AddMetadata("payout_type", req.PayoutType)
	params.SetIdempotencyKey("boohpay_transfer_" + req.PayoutID)
	params.Context = ctx

	transfer, err := retry.Do(ctx, func(context.Context) (*stripe.Transfer, error) {
		t, err := acc.api.Transfers.New(params)
		return t, stripeErr(err)
	}, p.retry)
	if err != nil {
		p.log.Error("transfer failed", zap.String("payout_id", req.PayoutID), zap.Error(err))
		return nil, err
	}
	return &PayoutResult{
		ProviderReference: transfer.ID,
		Status:            domain.PayoutProcessing,
		Metadata: map[string]any{
			"transfer_id": transfer.ID,
			"destination": dest,
			"amount":      transfer.Amount,
			"currency":    string(transfer.Currency),
		},
	}, nil
}
