package models

import (
	"strings"
	"time"
)

// Role is a user's platform role
type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RoleSupplierEmployee  Role = "SUPPLIER_EMPLOYEE"
	RoleLogisticsEmployee Role = "LOGISTICS_EMPLOYEE"
)

// RoleForCompany returns the employee role matching a company type
func RoleForCompany(t CompanyType) Role {
	switch t {
	case CompanyTypeSupplier:
		return RoleSupplierEmployee
	case CompanyTypeLogistics:
		return RoleLogisticsEmployee
	default:
		return RoleAdmin
	}
}

type User struct {
	ID             string    `db:"id" json:"id"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	Name           string    `db:"name" json:"name"`
	Role           Role      `db:"role" json:"role"`
	IsCompanyAdmin bool      `db:"is_company_admin" json:"is_company_admin"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CompanyID      string    `db:"company_id" json:"company_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NormalizeEmail lower-cases and trims an address; emails are unique case-insensitively
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser creates an active user
func NewUser(companyID, email, passwordHash, name string, role Role, companyAdmin bool) *User {
	return &User{
		ID:             GenerateID("usr"),
		Email:          NormalizeEmail(email),
		PasswordHash:   passwordHash,
		Name:           name,
		Role:           role,
		IsCompanyAdmin: companyAdmin,
		IsActive:       true,
		CompanyID:      companyID,
		CreatedAt:      GetCurrentTime(),
	}
}
