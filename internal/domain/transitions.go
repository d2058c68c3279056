package domain

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentAuthorized, PaymentSucceeded, PaymentFailed},
	PaymentAuthorized: {PaymentSucceeded, PaymentFailed},
}

// CanTransitionPayment reports whether a payment may move from one status to another.
// SUCCEEDED and FAILED are terminal.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalPayment(s PaymentStatus) bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:    {PayoutProcessing, PayoutSucceeded, PayoutFailed},
	PayoutProcessing: {PayoutPending, PayoutSucceeded, PayoutFailed},
}

func CanTransitionPayout(from, to PayoutStatus) bool {
	if from == to {
		return false
	}
	for _, s := range payoutTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalPayout(s PayoutStatus) bool {
	return s == PayoutSucceeded || s == PayoutFailed
}

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionActive: {SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired},
	SubscriptionPaused: {SubscriptionActive, SubscriptionCancelled},
}

func CanTransitionSubscription(from, to SubscriptionStatus) bool {
	for _, s := range subscriptionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsActiveRefund reports whether a refund counts against the refundable amount.
func IsActiveRefund(s RefundStatus) bool {
	return s == RefundPending || s == RefundProcessing || s == RefundSucceeded
}
