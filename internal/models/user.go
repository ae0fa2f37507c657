package models

import "time"

type UserRole string

const (
	UserRoleStudent UserRole = "estudante"
	UserRoleOwner   UserRole = "proprietario"
)

func (r UserRole) Valid() bool {
	return r == UserRoleStudent || r == UserRoleOwner
}

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Phone        string
	Role         UserRole
	PhotoURL     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
