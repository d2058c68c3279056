package service

import (
	"context"
	"errors"
	"strings"

	"boohpay/config"
	"boohpay/internal/apperr"
	"boohpay/internal/auth"
	"boohpay/internal/domain"
	"boohpay/internal/models"
	"boohpay/internal/repository"
)

// AuthService resolves the merchant behind an API key or bearer token.
type AuthService struct {
	cfg       *config.JWTConfig
	merchants *repository.MerchantRepository
}

func NewAuthService(cfg *config.JWTConfig, merchants *repository.MerchantRepository) *AuthService {
	return &AuthService{cfg: cfg, merchants: merchants}
}

// Principal is the authenticated caller.
type Principal struct {
	MerchantID string
	Role       string
}

func (s *AuthService) AuthenticateAPIKey(ctx context.Context, key string) (*Principal, error) {
	prefix, err := auth.APIKeyPrefix(key)
	if err != nil {
		return nil, apperr.AuthErr("Invalid API key")
	}
	m, err := s.merchants.GetByAPIKeyPrefix(ctx, prefix)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.AuthErr("Invalid API key")
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckAPIKey(m.APIKeyHash, key); err != nil {
		return nil, apperr.AuthErr("Invalid API key")
	}
	return &Principal{MerchantID: m.ID, Role: m.Role}, nil
}

func (s *AuthService) AuthenticateToken(token string) (*Principal, error) {
	claims, err := auth.ParseAccessToken(s.cfg, token)
	if err != nil {
		return nil, apperr.AuthErr("Invalid or expired token")
	}
	return &Principal{MerchantID: claims.MerchantID, Role: claims.Role}, nil
}

// IssueToken returns a short-lived JWT for a merchant, used by dashboards and the event stream.
func (s *AuthService) IssueToken(m *models.Merchant) (string, error) {
	return auth.GenerateAccessToken(s.cfg, m.ID, m.Role)
}

// CreateMerchant registers a merchant and returns the one-time plaintext API key.
func (s *AuthService) CreateMerchant(ctx context.Context, name, email, role string) (*models.Merchant, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", apperr.ValidationErr("name is required", map[string]string{"name": "required"})
	}
	if role != domain.RoleAdmin {
		role = domain.RoleMerchant
	}
	key, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}
	m := &models.Merchant{Name: name, Email: strings.TrimSpace(email), Role: role, APIKeyPrefix: prefix, APIKeyHash: hash}
	if err := s.merchants.Create(ctx, m); err != nil {
		return nil, "", err
	}
	return m, key, nil
}

// TokenFor issues a JWT for an existing merchant.
func (s *AuthService) TokenFor(ctx context.Context, merchantID string) (string, error) {
	m, err := s.merchants.GetByID(ctx, merchantID)
	if err != nil {
		return "", notFound(err, "Merchant")
	}
	return s.IssueToken(m)
}

// RegisterDevice stores the FCM token push notifications are sent to.
func (s *AuthService) RegisterDevice(ctx context.Context, merchantID, token string) error {
	return s.merchants.UpdateDeviceToken(ctx, merchantID, strings.TrimSpace(token))
}
