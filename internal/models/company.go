package models

import "time"

// Company is the tenant boundary. Every user, expense and approval flow
// step belongs to exactly one company.
type Company struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Country         string    `db:"country" json:"country"`
	DefaultCurrency string    `db:"default_currency" json:"default_currency"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
