package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	IsApproved   bool      `db:"is_approved"` // accounts require admin approval
	CreatedAt    time.Time `db:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
