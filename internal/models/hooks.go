package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (p *Payment) BeforeCreate(*gorm.DB) error         { newID(&p.ID); return nil }
func (e *PaymentEvent) BeforeCreate(*gorm.DB) error    { newID(&e.ID); return nil }
func (r *Refund) BeforeCreate(*gorm.DB) error          { newID(&r.ID); return nil }
func (e *RefundEvent) BeforeCreate(*gorm.DB) error     { newID(&e.ID); return nil }
func (p *Payout) BeforeCreate(*gorm.DB) error          { newID(&p.ID); return nil }
func (e *PayoutEvent) BeforeCreate(*gorm.DB) error     { newID(&e.ID); return nil }
func (s *Subscription) BeforeCreate(*gorm.DB) error    { newID(&s.ID); return nil }
func (a *DunningAttempt) BeforeCreate(*gorm.DB) error  { newID(&a.ID); return nil }
func (d *WebhookDelivery) BeforeCreate(*gorm.DB) error { newID(&d.ID); return nil }
func (m *Merchant) BeforeCreate(*gorm.DB) error        { newID(&m.ID); return nil }
