package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type memUserRepo struct {
	users     map[string]*models.User
	auditLogs []*models.AuditLog
	assigned  map[string]*string
}

func (m *memUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, user := range m.users {
		if filter.CompanyID != "" && user.CompanyID != filter.CompanyID {
			continue
		}
		out = append(out, *user)
	}
	return out, len(out), nil
}

func (m *memUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) Create(_ context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) Update(_ context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memUserRepo) AssignManager(_ context.Context, id string, managerID *string) error {
	if m.assigned == nil {
		m.assigned = make(map[string]*string)
	}
	m.assigned[id] = managerID
	if user, ok := m.users[id]; ok {
		user.ManagerID = managerID
	}
	return nil
}

func (m *memUserRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newUserFixture(t *testing.T) (*UserService, *memUserRepo) {
	t.Helper()
	repo := &memUserRepo{users: map[string]*models.User{
		"emp-1": {ID: "emp-1", CompanyID: "co-1", Email: "emp@acme.test", Role: models.RoleEmployee, Active: true},
		"mgr-1": {ID: "mgr-1", CompanyID: "co-1", Email: "mgr@acme.test", Role: models.RoleManager, Active: true},
		"out-1": {ID: "out-1", CompanyID: "co-2", Email: "out@other.test", Role: models.RoleManager, Active: true},
	}}
	return NewUserService(repo, validator.New(), zap.NewNop()), repo
}

func TestUserCreate(t *testing.T) {
	svc, repo := newUserFixture(t)

	user, err := svc.Create(context.Background(), adminClaims(), dto.CreateUserRequest{
		Email:    "New@acme.test",
		Password: "secret123",
		FullName: "Nina New",
		Role:     models.RoleEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@acme.test", user.Email)
	assert.Equal(t, "co-1", user.CompanyID)
	assert.True(t, user.Active)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	svc, _ := newUserFixture(t)

	_, err := svc.Create(context.Background(), adminClaims(), dto.CreateUserRequest{
		Email:    "emp@acme.test",
		Password: "secret123",
		FullName: "Dupe",
		Role:     models.RoleEmployee,
	})
	requireCode(t, err, appErrors.ErrConflict.Code)
}

func TestUserCreateUnknownRole(t *testing.T) {
	svc, _ := newUserFixture(t)

	_, err := svc.Create(context.Background(), adminClaims(), dto.CreateUserRequest{
		Email:    "x@acme.test",
		Password: "secret123",
		FullName: "X",
		Role:     "CONTRACTOR",
	})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestUserGetCrossCompanyHidden(t *testing.T) {
	svc, _ := newUserFixture(t)

	_, err := svc.Get(context.Background(), adminClaims(), "out-1")
	requireCode(t, err, appErrors.ErrNotFound.Code)
}

func TestUserUpdatePartial(t *testing.T) {
	svc, _ := newUserFixture(t)
	inactive := false

	user, err := svc.Update(context.Background(), adminClaims(), "emp-1", dto.UpdateUserRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, user.Active)
	assert.Equal(t, models.RoleEmployee, user.Role)
}

func TestUserAssignManager(t *testing.T) {
	svc, repo := newUserFixture(t)

	user, err := svc.AssignManager(context.Background(), adminClaims(), "emp-1", dto.AssignManagerRequest{ManagerID: strPtr("mgr-1")})
	require.NoError(t, err)
	require.NotNil(t, user.ManagerID)
	assert.Equal(t, "mgr-1", *user.ManagerID)
	assert.Contains(t, repo.assigned, "emp-1")
}

func TestUserAssignManagerSelf(t *testing.T) {
	svc, _ := newUserFixture(t)

	_, err := svc.AssignManager(context.Background(), adminClaims(), "emp-1", dto.AssignManagerRequest{ManagerID: strPtr("emp-1")})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestUserAssignManagerOtherCompany(t *testing.T) {
	svc, _ := newUserFixture(t)

	_, err := svc.AssignManager(context.Background(), adminClaims(), "emp-1", dto.AssignManagerRequest{ManagerID: strPtr("out-1")})
	requireCode(t, err, appErrors.ErrValidation.Code)
}

func TestUserAssignManagerClear(t *testing.T) {
	svc, repo := newUserFixture(t)
	repo.users["emp-1"].ManagerID = strPtr("mgr-1")

	user, err := svc.AssignManager(context.Background(), adminClaims(), "emp-1", dto.AssignManagerRequest{ManagerID: nil})
	require.NoError(t, err)
	assert.Nil(t, user.ManagerID)
}
