package repository

import (
	"context"

	"boohpay/internal/models"
	"boohpay/pkg/payment"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MerchantRepository struct {
	db *gorm.DB
}

func NewMerchantRepository(db *gorm.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) Create(ctx context.Context, m *models.Merchant) error {
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

func (r *MerchantRepository) GetByID(ctx context.Context, id string) (*models.Merchant, error) {
	var m models.Merchant
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *MerchantRepository) GetByAPIKeyPrefix(ctx context.Context, prefix string) (*models.Merchant, error) {
	var m models.Merchant
	if err := r.db.WithContext(ctx).Where("api_key_prefix = ?", prefix).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *MerchantRepository) UpdateDeviceToken(ctx context.Context, id, token string) error {
	return r.db.WithContext(ctx).Model(&models.Merchant{}).Where("id = ?", id).Update("device_token", token).Error
}

// Balances returns the ledger balance per currency.
func (r *MerchantRepository) Balances(ctx context.Context, merchantID string) (map[string]int64, error) {
	var rows []models.MerchantBalance
	if err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, b := range rows {
		out[b.Currency] = b.Balance
	}
	return out, nil
}

func (r *MerchantRepository) SetBalance(ctx context.Context, merchantID, currency string, balance int64) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&models.MerchantBalance{MerchantID: merchantID, Currency: currency, Balance: balance}).Error
}

// CredentialRepository serves per-merchant provider credentials to the adapters.
type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

var _ payment.CredentialResolver = (*CredentialRepository)(nil)

// Credentials returns nil, nil when the merchant has no stored credentials for provider.
func (r *CredentialRepository) Credentials(ctx context.Context, merchantID, provider string) (payment.Credentials, error) {
	if merchantID == "" {
		return nil, nil
	}
	var row models.ProviderCredential
	err := r.db.WithContext(ctx).Where("merchant_id = ? AND provider = ?", merchantID, provider).First(&row).Error
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return payment.Credentials(row.Data), nil
}

func (r *CredentialRepository) Save(ctx context.Context, merchantID, provider string, data map[string]any) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&models.ProviderCredential{MerchantID: merchantID, Provider: provider, Data: data}).Error
}
