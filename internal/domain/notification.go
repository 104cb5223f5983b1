package domain

import "time"

// NotificationKind distinguishes the post-order messages.
type NotificationKind string

const (
	// NotificationOrderConfirmation is the customer-facing order email.
	NotificationOrderConfirmation NotificationKind = "order_confirmation"
	// NotificationBusiness is the internal "new order" message to the shop.
	NotificationBusiness NotificationKind = "business_notification"
)

// NotificationTask is one queued message. Attempt counts deliveries already tried.
type NotificationTask struct {
	Kind       NotificationKind  `json:"kind"`
	OrderID    string            `json:"orderId"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	HTML       string            `json:"html"`
	Fields     map[string]string `json:"fields,omitempty"`
	Attempt    int               `json:"attempt"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}
