package models

import (
	"time"
)

// CompanyType separates cargo owners from carriers
type CompanyType string

const (
	CompanyTypeSupplier  CompanyType = "SUPPLIER"
	CompanyTypeLogistics CompanyType = "LOGISTICS"
	// CompanyTypePlatform owns the ADMIN accounts
	CompanyTypePlatform CompanyType = "PLATFORM"
)

// Company is a registered business on the exchange
type Company struct {
	ID         string      `db:"id" json:"id"`
	Name       string      `db:"name" json:"name"`
	Type       CompanyType `db:"type" json:"type"`
	Email      string      `db:"email" json:"email"`
	Phone      string      `db:"phone" json:"phone,omitempty"`
	Address    string      `db:"address" json:"address,omitempty"`
	TaxID      string      `db:"tax_id" json:"tax_id,omitempty"`
	IsVerified bool        `db:"is_verified" json:"is_verified"`
	IsActive   bool        `db:"is_active" json:"is_active"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// CanTrade reports whether the company may post announcements or offers
func (c *Company) CanTrade() bool {
	return c.IsVerified && c.IsActive
}

// NewCompany creates an unverified, active company
func NewCompany(name string, companyType CompanyType, email, phone, address, taxID string) *Company {
	return &Company{
		ID:        GenerateID("cmp"),
		Name:      name,
		Type:      companyType,
		Email:     email,
		Phone:     phone,
		Address:   address,
		TaxID:     taxID,
		IsActive:  true,
		CreatedAt: GetCurrentTime(),
	}
}
