package domain

import "time"

// TransactionRecord is the append-only record written at checkout,
// one per settled cart line. Never mutated or deleted.
type TransactionRecord struct {
	ID          string
	ProductID   int64
	ProductName string
	Quantity    int
	Total       float64
	Username    string
	CreatedAt   time.Time
}

// PurchaseEvent is published after a successful checkout.
type PurchaseEvent struct {
	TransactionIDs []string  `json:"transaction_ids"`
	Username       string    `json:"username"`
	TotalAmount    float64   `json:"total_amount"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
}
