package dto

// PaymentListRequest is the query string of the payment history endpoint
type PaymentListRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// StalePendingRequest is the query string of the admin stale-pending endpoint
type StalePendingRequest struct {
	OlderThan string `form:"older_than" binding:"omitempty"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// CheckoutResponse is returned by POST /billing/checkout
type CheckoutResponse struct {
	URL       string `json:"url"`
	PaymentID string `json:"payment_id"`
	Tier      string `json:"tier"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Credits   int64  `json:"credits"`
}

// WebhookAck is the body returned to the payment provider
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

// HealthResponse is returned by the health endpoints
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
