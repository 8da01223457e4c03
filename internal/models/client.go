package models

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Client is a CRM record owned by an account. Documents copy its fields at
// creation time (ClientInfo) instead of holding a live reference.
type Client struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OwnerID    snowflake.ID `gorm:"not null;index"`
	Name       string       `gorm:"not null;index"`
	Contact    string
	Email      string
	Phone      string
	Address    string
	PostalCode string
	City       string
	Country    string
	VATNumber  string `gorm:"index"`
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Info returns the denormalized snapshot embedded into new documents.
func (c Client) Info() ClientInfo {
	return ClientInfo{
		Name:       c.Name,
		Email:      c.Email,
		Address:    c.Address,
		PostalCode: c.PostalCode,
		City:       c.City,
		Country:    c.Country,
		VATNumber:  c.VATNumber,
	}
}
