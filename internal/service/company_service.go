package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vaidashi/freight-exchange/internal/auth"
	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

const platformCompanyName = "Freight Exchange"

type RegisterInput struct {
	CompanyName  string             `json:"company_name" validate:"required,max=255"`
	CompanyType  models.CompanyType `json:"company_type" validate:"required,oneof=SUPPLIER LOGISTICS"`
	CompanyEmail string             `json:"company_email" validate:"required,email"`
	Phone        string             `json:"phone" validate:"max=50"`
	Address      string             `json:"address" validate:"max=500"`
	TaxID        string             `json:"tax_id" validate:"max=50"`
	Name         string             `json:"name" validate:"required,max=255"`
	Email        string             `json:"email" validate:"required,email"`
	Password     string             `json:"password" validate:"required,min=8,max=72"`
}

type EmployeeInput struct {
	Name           string `json:"name" validate:"required,max=255"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
	IsCompanyAdmin bool   `json:"is_company_admin"`
}

type CompanyUpdate struct {
	IsVerified *bool `json:"is_verified"`
	IsActive   *bool `json:"is_active"`
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *models.User    `json:"user"`
	Company   *models.Company `json:"company"`
}

// Profile is the caller's own user and company
type Profile struct {
	User    *models.User    `json:"user"`
	Company *models.Company `json:"company"`
}

// CompanyService handles registration, login and the admin side of companies
type CompanyService struct {
	store  repository.Store
	tokens *auth.TokenIssuer
	logger logger.Logger

	// onCompanyChanged is told when verification or activation flags change
	onCompanyChanged func(companyID string)
}

func NewCompanyService(store repository.Store, tokens *auth.TokenIssuer, logger logger.Logger) *CompanyService {
	return &CompanyService{
		store:            store,
		tokens:           tokens,
		logger:           logger,
		onCompanyChanged: func(string) {},
	}
}

// OnCompanyChanged registers a hook, typically SessionCache.InvalidateCompany
func (s *CompanyService) OnCompanyChanged(fn func(companyID string)) {
	if fn != nil {
		s.onCompanyChanged = fn
	}
}

// Register creates an unverified company together with its first user, who
// becomes the company admin
func (s *CompanyService) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		return nil, apperrors.NewInternalError("failed to register")
	}

	company := models.NewCompany(strings.TrimSpace(in.CompanyName), in.CompanyType,
		models.NormalizeEmail(in.CompanyEmail), in.Phone, in.Address, in.TaxID)
	user := models.NewUser(company.ID, in.Email, hash, strings.TrimSpace(in.Name),
		models.RoleForCompany(in.CompanyType), true)

	err = s.store.InTx(ctx, func(q repository.Queries) error {
		if err := s.ensureEmailFree(ctx, q, user.Email); err != nil {
			return err
		}
		if err := q.CreateCompany(ctx, company); err != nil {
			return storeError(s.logger, err, "company")
		}
		if err := q.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict(ErrEmailTaken, "EMAIL_TAKEN")
			}
			return storeError(s.logger, err, "user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Company registered", "company_id", company.ID, "type", company.Type, "user_id", user.ID)
	return &Profile{User: user, Company: company}, nil
}

// Login verifies credentials and issues a bearer token
func (s *CompanyService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	invalid := apperrors.NewUnauthorizedError(ErrInvalidCredentials.Error()).
		WithCause(ErrInvalidCredentials).WithCode("INVALID_CREDENTIALS")

	q := s.store.Queries()
	user, err := q.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, storeError(s.logger, err, "user")
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("Failed to check password", "user_id", user.ID, "error", err)
		}
		return nil, invalid
	}

	company, err := q.GetCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	if !user.IsActive || !company.IsActive {
		return nil, apperrors.NewForbiddenError(ErrInactiveAccount.Error()).
			WithCause(ErrInactiveAccount).WithCode("ACCOUNT_DISABLED")
	}

	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("Failed to issue token", "user_id", user.ID, "error", err)
		return nil, apperrors.NewInternalError("failed to log in")
	}

	s.logger.Info("User logged in", "user_id", user.ID, "company_id", company.ID)
	return &LoginResult{Token: token, ExpiresAt: exp, User: user, Company: company}, nil
}

// LoadSession reads the current flags of a user and company. It is the
// loader behind auth.SessionCache.
func (s *CompanyService) LoadSession(ctx context.Context, userID string) (*models.Session, error) {
	q := s.store.Queries()
	user, err := q.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError(s.logger, err, "user")
	}
	company, err := q.GetCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	return models.NewSession(user, company), nil
}

func (s *CompanyService) Me(ctx context.Context, session *models.Session) (*Profile, error) {
	q := s.store.Queries()
	user, err := q.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, storeError(s.logger, err, "user")
	}
	company, err := q.GetCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	return &Profile{User: user, Company: company}, nil
}

// CreateEmployee adds a user to the caller's company. Only company admins
// may do this; the role follows the company type.
func (s *CompanyService) CreateEmployee(ctx context.Context, session *models.Session, in EmployeeInput) (*models.User, error) {
	if !session.IsCompanyAdmin && !session.IsAdmin() {
		return nil, forbidden("only company admins can add employees")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		return nil, apperrors.NewInternalError("failed to create user")
	}

	user := models.NewUser(session.CompanyID, in.Email, hash, strings.TrimSpace(in.Name),
		models.RoleForCompany(session.CompanyType), in.IsCompanyAdmin)

	err = s.store.InTx(ctx, func(q repository.Queries) error {
		if err := s.ensureEmailFree(ctx, q, user.Email); err != nil {
			return err
		}
		if err := q.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict(ErrEmailTaken, "EMAIL_TAKEN")
			}
			return storeError(s.logger, err, "user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Employee created", "company_id", session.CompanyID, "user_id", user.ID, "role", user.Role)
	return user, nil
}

// ListCompanies is admin only
func (s *CompanyService) ListCompanies(ctx context.Context, session *models.Session, filter repository.CompanyFilter) ([]*models.Company, error) {
	if !session.IsAdmin() {
		return nil, forbidden("admin access required")
	}
	list, err := s.store.Queries().ListCompanies(ctx, filter)
	if err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	return list, nil
}

// UpdateCompany sets verification and activation flags. Cached sessions of
// the company's users are dropped so the change is visible immediately.
func (s *CompanyService) UpdateCompany(ctx context.Context, session *models.Session, id string, update CompanyUpdate) (*models.Company, error) {
	if !session.IsAdmin() {
		return nil, forbidden("admin access required")
	}

	var company *models.Company
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		c, err := q.GetCompany(ctx, id)
		if err != nil {
			return storeError(s.logger, err, "company")
		}
		if update.IsVerified != nil {
			c.IsVerified = *update.IsVerified
		}
		if update.IsActive != nil {
			c.IsActive = *update.IsActive
		}
		if err := q.UpdateCompanyFlags(ctx, c.ID, c.IsVerified, c.IsActive); err != nil {
			return storeError(s.logger, err, "company")
		}
		company = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.onCompanyChanged(company.ID)
	s.logger.Info("Company updated", "company_id", company.ID, "verified", company.IsVerified,
		"active", company.IsActive, "by", session.UserID)
	return company, nil
}

// BootstrapAdmin creates a platform admin, adding the platform company on
// first use. It is idempotent for an existing admin email.
func (s *CompanyService) BootstrapAdmin(ctx context.Context, email, password, name string) (*models.User, error) {
	if len(password) < auth.MinPasswordLength {
		return nil, apperrors.NewValidationError("validation failed",
			map[string]string{"password": "must be at least 8 characters"})
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to hash password")
	}

	var admin *models.User
	err = s.store.InTx(ctx, func(q repository.Queries) error {
		existing, err := q.GetUserByEmail(ctx, models.NormalizeEmail(email))
		if err == nil {
			if existing.Role != models.RoleAdmin {
				return conflict(ErrEmailTaken, "EMAIL_TAKEN")
			}
			admin = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return storeError(s.logger, err, "user")
		}

		platform, err := s.platformCompany(ctx, q, email)
		if err != nil {
			return err
		}

		admin = models.NewUser(platform.ID, email, hash, name, models.RoleAdmin, true)
		return storeError(s.logger, q.CreateUser(ctx, admin), "user")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Admin ready", "user_id", admin.ID, "email", admin.Email)
	return admin, nil
}

func (s *CompanyService) platformCompany(ctx context.Context, q repository.Queries, email string) (*models.Company, error) {
	list, err := q.ListCompanies(ctx, repository.CompanyFilter{Type: models.CompanyTypePlatform, Limit: 1})
	if err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	if len(list) > 0 {
		return list[0], nil
	}

	c := models.NewCompany(platformCompanyName, models.CompanyTypePlatform, models.NormalizeEmail(email), "", "", "")
	c.IsVerified = true
	if err := q.CreateCompany(ctx, c); err != nil {
		return nil, storeError(s.logger, err, "company")
	}
	return c, nil
}

func (s *CompanyService) ensureEmailFree(ctx context.Context, q repository.Queries, email string) error {
	_, err := q.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return conflict(ErrEmailTaken, "EMAIL_TAKEN")
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return storeError(s.logger, err, "user")
	}
}
