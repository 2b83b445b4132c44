package models

import (
	"time"

	"github.com/google/uuid"
)

// Role — роль пользователя в системе.
type Role string

const (
	// RoleRoot назначается первому зарегистрированному пользователю.
	RoleRoot Role = "root"
	// RoleUser — роль по умолчанию для всех последующих пользователей.
	RoleUser Role = "user"
)

// User - модель пользователя в системе.
//
// DeletedAt — маркер мягкого удаления: ненулевое значение означает,
// что учётная запись удалена, хотя строка в БД сохраняется.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []Role
	Active       bool
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Usable сообщает, может ли учётная запись аутентифицироваться:
// активна и не помечена как удалённая. Политика живёт только здесь;
// service и resolver пользуются этим предикатом, а не полями напрямую.
func (u *User) Usable() bool {
	return u.Active && u.DeletedAt == nil
}

// Public возвращает копию пользователя без хэша пароля —
// в таком виде пользователь уходит наружу в ответах.
func (u *User) Public() User {
	pub := *u
	pub.PasswordHash = ""
	return pub
}
