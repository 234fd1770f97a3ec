package models

// Session is the caller identity resolved for every authenticated request
type Session struct {
	UserID         string      `json:"user_id"`
	Email          string      `json:"email"`
	Name           string      `json:"name"`
	Role           Role        `json:"role"`
	CompanyID      string      `json:"company_id"`
	CompanyType    CompanyType `json:"company_type"`
	IsVerified     bool        `json:"is_verified"`
	IsActive       bool        `json:"is_active"`
	IsCompanyAdmin bool        `json:"is_company_admin"`
}

// IsAdmin reports whether the caller is a platform administrator
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// NewSession builds a session from the stored user and company rows
func NewSession(u *User, c *Company) *Session {
	return &Session{
		UserID:         u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		CompanyID:      u.CompanyID,
		CompanyType:    c.Type,
		IsVerified:     c.IsVerified,
		IsActive:       c.IsActive && u.IsActive,
		IsCompanyAdmin: u.IsCompanyAdmin,
	}
}
