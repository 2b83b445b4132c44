package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/первичный ключ).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями (каталог пользователей).
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// CountUsers возвращает число пользователей в каталоге,
	// включая неактивных и мягко удалённых. Используется решением
	// «первый пользователь — root» в момент регистрации.
	CountUsers(ctx context.Context) (int64, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новую запись refresh-токена.
	// Таймстемпы записи выставляет вызывающий — одним чтением часов
	// вместе с exp подписанного конверта.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByID находит запись по её ID (jti конверта).
	RefreshTokenByID(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error)
	// RevokeRefreshToken помечает запись отозванной. Идемпотентно:
	// повторный отзыв — успех-no-op; отсутствующая запись — ErrNotFound.
	// Записи не удаляются физически.
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
