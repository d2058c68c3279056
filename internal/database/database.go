package database

import (
	"strings"
	"time"

	"boohpay/config"
	"boohpay/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens MySQL, or sqlite when the DSN starts with "sqlite:" (local runs and the CLI).
func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func dialector(dsn string) gorm.Dialector {
	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		return sqlite.Open(path)
	}
	return mysql.Open(dsn)
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Merchant{},
		&models.MerchantBalance{},
		&models.ProviderCredential{},
		&models.Payment{},
		&models.PaymentEvent{},
		&models.Refund{},
		&models.RefundEvent{},
		&models.Payout{},
		&models.PayoutEvent{},
		&models.PayoutJob{},
		&models.QueueControl{},
		&models.IdempotencyRecord{},
		&models.ProcessedWebhookEvent{},
		&models.WebhookDelivery{},
		&models.Subscription{},
		&models.DunningAttempt{},
		&models.ReconciliationLog{},
		&models.ReconciliationSummary{},
		&models.Notification{},
	)
}
