package domain

const (
	RoleMerchant = "MERCHANT"
	RoleAdmin    = "ADMIN"
)

type Gateway string

const (
	GatewayStripe   Gateway = "STRIPE"
	GatewayMoneroo  Gateway = "MONEROO"
	GatewayEbilling Gateway = "EBILLING"
	GatewayShap     Gateway = "SHAP"
	GatewaySandbox  Gateway = "SANDBOX"
)

const (
	MethodCard        = "CARD"
	MethodMobileMoney = "MOBILE_MONEY"
	MethodMomo        = "MOMO"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentAuthorized PaymentStatus = "AUTHORIZED"
	PaymentSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentFailed     PaymentStatus = "FAILED"
)

type RefundStatus string

const (
	RefundPending    RefundStatus = "PENDING"
	RefundProcessing RefundStatus = "PROCESSING"
	RefundSucceeded  RefundStatus = "SUCCEEDED"
	RefundFailed     RefundStatus = "FAILED"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutSucceeded  PayoutStatus = "SUCCEEDED"
	PayoutFailed     PayoutStatus = "FAILED"
)

const (
	PayoutTypeWithdrawal = "WITHDRAWAL"
	PayoutTypeRefund     = "REFUND"
	PayoutTypeCashback   = "CASHBACK"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPaused    SubscriptionStatus = "PAUSED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

const (
	CycleDaily     = "DAILY"
	CycleWeekly    = "WEEKLY"
	CycleMonthly   = "MONTHLY"
	CycleQuarterly = "QUARTERLY"
	CycleYearly    = "YEARLY"
)

const (
	DunningPending   = "pending"
	DunningSucceeded = "succeeded"
	DunningFailed    = "failed"
)

// Checkout payload kinds returned to API clients.
const (
	CheckoutRedirect     = "REDIRECT"
	CheckoutClientSecret = "CLIENT_SECRET"
	CheckoutInfo         = "INFO"
)

// Event types appended to the *_events tables.
const (
	EventPaymentInitiated        = "PAYMENT_INITIATED"
	EventPaymentProviderResponse = "PAYMENT_PROVIDER_RESPONSE"
	EventPaymentSucceeded        = "PAYMENT_SUCCEEDED"
	EventPaymentFailed           = "PAYMENT_FAILED"

	EventRefundInitiated        = "REFUND_INITIATED"
	EventRefundProviderResponse = "REFUND_PROVIDER_RESPONSE"
	EventRefundFailed           = "REFUND_FAILED"

	EventPayoutInitiated        = "PAYOUT_INITIATED"
	EventPayoutProcessing       = "PAYOUT_PROCESSING"
	EventPayoutProviderResponse = "PAYOUT_PROVIDER_RESPONSE"
	EventPayoutStatusChecked    = "PAYOUT_STATUS_CHECKED"
	EventPayoutFailed           = "PAYOUT_FAILED"
	EventPayoutCancelled        = "PAYOUT_CANCELLED"
	EventPayoutCallback         = "PAYOUT_CALLBACK"
)

// PaymentStatusEvent is the event type recorded when a payment enters status s.
func PaymentStatusEvent(s PaymentStatus) string {
	return "PAYMENT_" + string(s)
}

// PayoutStatusEvent is the event type recorded when a callback moves a payout to status s.
func PayoutStatusEvent(s PayoutStatus) string {
	return "PAYOUT_STATUS_" + string(s)
}
