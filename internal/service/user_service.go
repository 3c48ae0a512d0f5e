package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rivashah/expense-management-api/internal/dto"
	"github.com/rivashah/expense-management-api/internal/models"
	appErrors "github.com/rivashah/expense-management-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	AssignManager(ctx context.Context, id string, managerID *string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService handles company roster management.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users scoped to the caller's company.
func (s *UserService) List(ctx context.Context, claims *models.JWTClaims, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter.CompanyID = claims.CompanyID

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID within the caller's company.
func (s *UserService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.User, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.CompanyID != claims.CompanyID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// Create adds a new user to the caller's company.
func (s *UserService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateUserRequest) (*models.User, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if !validUserRole(req.Role) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown user role")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	if req.ManagerID != nil {
		if err := s.checkManager(ctx, claims.CompanyID, *req.ManagerID); err != nil {
			return nil, err
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		CompanyID:    claims.CompanyID,
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(passwordHash),
		FullName:     req.FullName,
		Role:         req.Role,
		ManagerID:    req.ManagerID,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	payload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role})
	s.emitUserAudit(ctx, claims.UserID, user.ID, models.AuditActionUserCreate, payload)

	return user, nil
}

// Update mutates the mutable fields of a user in the caller's company.
func (s *UserService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateUserRequest) (*models.User, error) {
	user, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Role != nil {
		if !validUserRole(*req.Role) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown user role")
		}
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	payload, _ := json.Marshal(map[string]interface{}{"role": user.Role, "active": user.Active})
	s.emitUserAudit(ctx, claims.UserID, user.ID, models.AuditActionUserUpdate, payload)

	return user, nil
}

// AssignManager sets or clears a user's manager. The manager must be
// an active member of the same company, and a user cannot manage
// themselves.
func (s *UserService) AssignManager(ctx context.Context, claims *models.JWTClaims, id string, req dto.AssignManagerRequest) (*models.User, error) {
	user, err := s.Get(ctx, claims, id)
	if err != nil {
		return nil, err
	}

	if req.ManagerID != nil {
		if *req.ManagerID == id {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a user cannot be their own manager")
		}
		if err := s.checkManager(ctx, claims.CompanyID, *req.ManagerID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.AssignManager(ctx, id, req.ManagerID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign manager")
	}
	user.ManagerID = req.ManagerID

	payload, _ := json.Marshal(map[string]interface{}{"manager_id": req.ManagerID})
	s.emitUserAudit(ctx, claims.UserID, user.ID, models.AuditActionUserUpdate, payload)

	return user, nil
}

func (s *UserService) checkManager(ctx context.Context, companyID, managerID string) error {
	manager, err := s.repo.FindByID(ctx, managerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "manager does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load manager")
	}
	if manager.CompanyID != companyID {
		return appErrors.Clone(appErrors.ErrValidation, "manager belongs to another company")
	}
	if !manager.Active {
		return appErrors.Clone(appErrors.ErrValidation, "manager account is inactive")
	}
	return nil
}

func (s *UserService) emitUserAudit(ctx context.Context, actorID, userID, action string, payload []byte) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: &userID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "user-service",
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func validUserRole(role models.UserRole) bool {
	switch role {
	case models.RoleAdmin, models.RoleManager, models.RoleEmployee, models.RoleFinance, models.RoleDirector:
		return true
	}
	return false
}
