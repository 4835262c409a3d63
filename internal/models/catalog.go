package models

import "time"

// Activity names a reason for awarding points.
type Activity struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description,omitempty"`
	DefaultPoints int64     `db:"default_points" json:"default_points"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Prize is a redeemable inventory item. StockCount never goes below zero.
type Prize struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	PointCost   int64     `db:"point_cost" json:"point_cost"`
	StockCount  int64     `db:"stock_count" json:"stock_count"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
