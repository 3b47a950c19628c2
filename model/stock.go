package model

import "time"

// StockRecord is the durable stock row. AvailableStock only ever decreases
// through the conditional decrement in the database layer, and Version is
// incremented on every successful write so a stale writer loses the race
// instead of silently clobbering a newer row.
type StockRecord struct {
	StockID        string    `json:"stock_id"`
	ProductID      string    `json:"product_id"`
	TotalStock     int64     `json:"total_stock"`
	AvailableStock int64     `json:"available_stock"`
	LockedStock    int64     `json:"locked_stock"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
