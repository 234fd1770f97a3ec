package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/freight-exchange/internal/auth"
	"github.com/vaidashi/freight-exchange/internal/models"
	"github.com/vaidashi/freight-exchange/internal/repository"
	"github.com/vaidashi/freight-exchange/internal/repository/memory"
	apperrors "github.com/vaidashi/freight-exchange/pkg/errors"
	"github.com/vaidashi/freight-exchange/pkg/logger"
)

func newCompanyService(t *testing.T) (*CompanyService, *auth.TokenIssuer) {
	t.Helper()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	return NewCompanyService(memory.NewStore(), tokens, logger.NewNop()), tokens
}

func registration(email string) RegisterInput {
	return RegisterInput{
		CompanyName:  "Swift Cargo",
		CompanyType:  models.CompanyTypeLogistics,
		CompanyEmail: "ops@swift.example",
		Name:         "Dana",
		Email:        email,
		Password:     "long-enough",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newCompanyService(t)

	profile, err := svc.Register(ctx, registration("Dana@Swift.example"))
	require.NoError(t, err)
	assert.False(t, profile.Company.IsVerified, "new companies await verification")
	assert.Equal(t, models.RoleLogisticsEmployee, profile.User.Role)
	assert.True(t, profile.User.IsCompanyAdmin)
	assert.Equal(t, "dana@swift.example", profile.User.Email)

	_, err = svc.Register(ctx, registration("DANA@swift.example"))
	assert.ErrorIs(t, err, ErrEmailTaken)

	res, err := svc.Login(ctx, "dana@swift.example", "long-enough")
	require.NoError(t, err)
	claims, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.User.ID, claims.UserID)

	_, err = svc.Login(ctx, "dana@swift.example", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = svc.Login(ctx, "nobody@swift.example", "long-enough")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newCompanyService(t)

	in := registration("not-an-email")
	in.Password = "short"
	in.CompanyType = models.CompanyTypePlatform

	_, err := svc.Register(context.Background(), in)
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	app, _ := apperrors.AsAppError(err)
	assert.Contains(t, app.Fields, "email")
	assert.Contains(t, app.Fields, "password")
	assert.Contains(t, app.Fields, "company_type")
}

func TestVerificationInvalidatesSessions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCompanyService(t)

	profile, err := svc.Register(ctx, registration("dana@swift.example"))
	require.NoError(t, err)

	cache := auth.NewSessionCache(time.Hour, svc.LoadSession)
	svc.OnCompanyChanged(cache.InvalidateCompany)

	session, err := cache.Get(ctx, profile.User.ID)
	require.NoError(t, err)
	assert.False(t, session.IsVerified)

	admin, err := svc.BootstrapAdmin(ctx, "root@platform.example", "long-enough", "Root")
	require.NoError(t, err)
	adminSession, err := svc.LoadSession(ctx, admin.ID)
	require.NoError(t, err)
	require.True(t, adminSession.IsAdmin())

	verified := true
	_, err = svc.UpdateCompany(ctx, session, profile.Company.ID, CompanyUpdate{IsVerified: &verified})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	company, err := svc.UpdateCompany(ctx, adminSession, profile.Company.ID, CompanyUpdate{IsVerified: &verified})
	require.NoError(t, err)
	assert.True(t, company.IsVerified)

	session, err = cache.Get(ctx, profile.User.ID)
	require.NoError(t, err)
	assert.True(t, session.IsVerified, "cache entry was dropped on verification")
}

func TestCreateEmployee(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCompanyService(t)

	profile, err := svc.Register(ctx, registration("dana@swift.example"))
	require.NoError(t, err)
	owner, err := svc.LoadSession(ctx, profile.User.ID)
	require.NoError(t, err)

	emp, err := svc.CreateEmployee(ctx, owner, EmployeeInput{Name: "Lee", Email: "lee@swift.example", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleLogisticsEmployee, emp.Role)
	assert.Equal(t, profile.Company.ID, emp.CompanyID)
	assert.False(t, emp.IsCompanyAdmin)

	empSession, err := svc.LoadSession(ctx, emp.ID)
	require.NoError(t, err)
	_, err = svc.CreateEmployee(ctx, empSession, EmployeeInput{Name: "Kim", Email: "kim@swift.example", Password: "long-enough"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.CreateEmployee(ctx, owner, EmployeeInput{Name: "Dup", Email: "LEE@swift.example", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCompanyService(t)

	first, err := svc.BootstrapAdmin(ctx, "root@platform.example", "long-enough", "Root")
	require.NoError(t, err)
	second, err := svc.BootstrapAdmin(ctx, "root@platform.example", "long-enough", "Root")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := svc.BootstrapAdmin(ctx, "ops@platform.example", "long-enough", "Ops")
	require.NoError(t, err)
	assert.Equal(t, first.CompanyID, other.CompanyID, "admins share the platform company")

	session, err := svc.LoadSession(ctx, first.ID)
	require.NoError(t, err)
	list, err := svc.ListCompanies(ctx, session, repository.CompanyFilter{Type: models.CompanyTypePlatform})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
