package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"boohpay/internal/cache"
	"boohpay/internal/currency"
	"boohpay/internal/domain"
	"boohpay/internal/retry"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	shapDefaultBaseURL  = "https://test.billing-easy.net/shap/api/v1/merchant"
	shapDefaultTokenTTL = time.Hour
)

type ShapConfig struct {
	APIID     string
	APISecret string
	BaseURL   string
}

// ShapProvider sends mobile money payouts through SHAP. Access tokens are cached per merchant and base URL.
type ShapProvider struct {
	cfg    ShapConfig
	creds  CredentialResolver
	tokens cache.TokenStore
	http   *jsonClient
	log    *zap.Logger
	now    func() time.Time
}

func NewShapProvider(cfg ShapConfig, creds CredentialResolver, tokens cache.TokenStore, client *http.Client, opts retry.Options, log *zap.Logger) *ShapProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = shapDefaultBaseURL
	}
	if creds == nil {
		creds = NoCredentials{}
	}
	if tokens == nil {
		tokens = cache.NewTokenCache(0, shapDefaultTokenTTL)
	}
	return &ShapProvider{
		cfg:    cfg,
		creds:  creds,
		tokens: tokens,
		http:   newJSONClient("shap", client, opts),
		log:    log.Named("shap"),
		now:    time.Now,
	}
}

type shapAccount struct {
	apiID     string
	apiSecret string
	baseURL   string
}

func (p *ShapProvider) resolve(ctx context.Context, merchantID string) (shapAccount, error) {
	stored, err := p.creds.Credentials(ctx, merchantID, string(domain.GatewayShap))
	if err != nil {
		return shapAccount{}, err
	}
	acc := shapAccount{
		apiID:     firstNonEmpty(stored.String("apiId"), p.cfg.APIID),
		apiSecret: firstNonEmpty(stored.String("apiSecret"), p.cfg.APISecret),
		baseURL:   strings.TrimRight(firstNonEmpty(stored.String("baseUrl"), p.cfg.BaseURL), "/"),
	}
	if acc.apiID == "" || acc.apiSecret == "" {
		return shapAccount{}, fmt.Errorf("shap: %w", ErrNotConfigured)
	}
	return acc, nil
}

func shapTokenKey(merchantID, baseURL string) string {
	return merchantID + ":" + baseURL
}

type shapAuthRequest struct {
	APIID     string `json:"api_id"`
	APISecret string `json:"api_secret"`
}

type shapAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *ShapProvider) token(ctx context.Context, merchantID string, acc shapAccount) (*oauth2.Token, error) {
	key := shapTokenKey(merchantID, acc.baseURL)
	if tok, ok := p.tokens.Get(key); ok {
		return tok, nil
	}
	var out shapAuthResponse
	if _, err := p.http.do(ctx, http.MethodPost, acc.baseURL+"/auth", nil, shapAuthRequest{APIID: acc.apiID, APISecret: acc.apiSecret}, &out); err != nil {
		return nil, fmt.Errorf("shap authentication: %w", err)
	}
	if out.AccessToken == "" {
		return nil, errors.New("shap authentication: response has no access_token")
	}
	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = shapDefaultTokenTTL
	}
	tok := &oauth2.Token{
		AccessToken: out.AccessToken,
		TokenType:   firstNonEmpty(out.TokenType, "Bearer"),
		Expiry:      p.now().Add(ttl),
	}
	p.tokens.Put(key, tok)
	return tok, nil
}

type shapPayoutRequest struct {
	PaymentSystemName string `json:"payment_system_name"`
	Payout            struct {
		PayeeMSISDN       string  `json:"payee_msisdn"`
		Amount            float64 `json:"amount"`
		ExternalReference string  `json:"external_reference"`
		PayoutType        string  `json:"payout_type"`
	} `json:"payout"`
}

type shapPayoutResponse struct {
	Successful     any    `json:"successful"`
	SuccessMessage string `json:"success_message"`
	Response       struct {
		PayoutID          string  `json:"payout_id"`
		TransactionID     string  `json:"transaction_id"`
		PaymentSystemName string  `json:"payment_system_name"`
		Amount            float64 `json:"amount"`
		Currency          string  `json:"currency"`
		ExternalReference string  `json:"external_reference"`
		State             string  `json:"state"`
	} `json:"response"`
}

func (p *ShapProvider) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	acc, err := p.resolve(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}
	tok, err := p.token(ctx, req.MerchantID, acc)
	if err != nil {
		return nil, err
	}

	var body shapPayoutRequest
	body.PaymentSystemName = req.PaymentSystem
	body.Payout.PayeeMSISDN = ShapMSISDN(req.MSISDN)
	body.Payout.Amount = currency.MajorFloat(req.AmountMinor, req.Currency)
	body.Payout.ExternalReference = req.externalReference()
	body.Payout.PayoutType = strings.ToLower(req.PayoutType)

	header := http.Header{}
	r := &http.Request{Header: header}
	tok.SetAuthHeader(r)

	var out shapPayoutResponse
	if _, err := p.http.do(ctx, http.MethodPost, acc.baseURL+"/payout", header, body, &out); err != nil {
		if IsAuthError(err) {
			p.tokens.Invalidate(shapTokenKey(req.MerchantID, acc.baseURL))
		}
		p.log.Error("payout failed", zap.String("payout_id", req.PayoutID), zap.Error(err))
		return nil, err
	}
	res := out.Response
	p.log.Info("payout accepted", zap.String("payout_id", req.PayoutID), zap.String("shap_payout_id", res.PayoutID), zap.String("state", res.State))

	amount := res.Amount
	if amount == 0 {
		amount = body.Payout.Amount
	}
	return &PayoutResult{
		ProviderReference: firstNonEmpty(res.PayoutID, res.TransactionID),
		Status:            MapPayoutState(res.State),
		Metadata: map[string]any{
			"paymentSystem": firstNonEmpty(res.PaymentSystemName, req.PaymentSystem),
			"amount":        amount,
			"currency":      firstNonEmpty(res.Currency, req.Currency),
			"shapState":     res.State,
		},
	}, nil
}
