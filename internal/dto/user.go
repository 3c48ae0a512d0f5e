package dto

import "github.com/rivashah/expense-management-api/internal/models"

// CreateUserRequest payload for admin user creation.
type CreateUserRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=6"`
	FullName  string          `json:"full_name" validate:"required"`
	Role      models.UserRole `json:"role" validate:"required"`
	ManagerID *string         `json:"manager_id,omitempty"`
}

// UpdateUserRequest payload for mutating roster entries.
type UpdateUserRequest struct {
	FullName *string          `json:"full_name,omitempty"`
	Role     *models.UserRole `json:"role,omitempty"`
	Active   *bool            `json:"active,omitempty"`
}

// AssignManagerRequest sets or clears a user's manager back-reference.
type AssignManagerRequest struct {
	ManagerID *string `json:"manager_id"`
}
