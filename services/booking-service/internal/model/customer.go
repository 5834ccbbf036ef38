package model

import "time"

// Customer is keyed by email for the booking upsert.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CustomerFilter struct {
	Search string
	Limit  int
}
