package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/freight-exchange/internal/models"
)

const companyColumns = `id, name, type, email, phone, address, tax_id, is_verified, is_active, created_at`

const userColumns = `id, email, password_hash, name, role, is_company_admin, is_active, company_id, created_at`

// CreateCompany inserts a new company
func (r *Repository) CreateCompany(ctx context.Context, company *models.Company) error {
	query := `
		INSERT INTO companies (` + companyColumns + `)
		VALUES (:id, :name, :type, :email, :phone, :address, :tax_id, :is_verified, :is_active, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, company); err != nil {
		return r.wrap(err, "Failed to create company", "companyID", company.ID)
	}

	return nil
}

// GetCompany retrieves a company by its ID
func (r *Repository) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`

	var company models.Company
	if err := sqlx.GetContext(ctx, r.db, &company, query, id); err != nil {
		return nil, r.wrap(err, "Failed to get company", "companyID", id)
	}

	return &company, nil
}

// ListCompanies returns companies newest first
func (r *Repository) ListCompanies(ctx context.Context, filter CompanyFilter) ([]*models.Company, error) {
	var w where
	if filter.Type != "" {
		w.add("type = $%d", filter.Type)
	}
	if filter.Verified != nil {
		w.add("is_verified = $%d", *filter.Verified)
	}

	query, args := paginate(
		`SELECT `+companyColumns+` FROM companies`+w.String()+` ORDER BY created_at DESC`,
		w.args, filter.Limit, filter.Offset,
	)

	companies := []*models.Company{}
	if err := sqlx.SelectContext(ctx, r.db, &companies, query, args...); err != nil {
		return nil, r.wrap(err, "Failed to list companies")
	}

	return companies, nil
}

// UpdateCompanyFlags sets the verification and activation flags
func (r *Repository) UpdateCompanyFlags(ctx context.Context, id string, verified, active bool) error {
	return r.execOne(ctx, "Failed to update company flags",
		`UPDATE companies SET is_verified = $1, is_active = $2 WHERE id = $3`,
		verified, active, id)
}

// CreateUser inserts a user; a taken email yields ErrDuplicate
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :password_hash, :name, :role, :is_company_admin, :is_active, :company_id, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, user); err != nil {
		return r.wrap(err, "Failed to create user", "userID", user.ID)
	}

	return nil
}

// GetUser retrieves a user by its ID
func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, r.wrap(err, "Failed to get user", "userID", id)
	}

	return &user, nil
}

// GetUserByEmail looks a user up case-insensitively
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = $1`
	if err := sqlx.GetContext(ctx, r.db, &user, query, models.NormalizeEmail(email)); err != nil {
		return nil, r.wrap(err, "Failed to get user by email")
	}

	return &user, nil
}

// ListUsersByCompany returns every user of a company, oldest first
func (r *Repository) ListUsersByCompany(ctx context.Context, companyID string) ([]*models.User, error) {
	users := []*models.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE company_id = $1 ORDER BY created_at ASC`
	if err := sqlx.SelectContext(ctx, r.db, &users, query, companyID); err != nil {
		return nil, r.wrap(err, "Failed to list company users", "companyID", companyID)
	}

	return users, nil
}

func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, r.wrap(err, "Failed to count users")
	}

	return count, nil
}
