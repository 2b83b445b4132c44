package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверная запись о выпущенном refresh-токене.
//
// ID совпадает с claim jti в подписанном refresh-конверте; по нему
// resolver находит запись при обновлении/выходе. Записи никогда не
// удаляются физически: отзыв — это одностороннее выставление Revoked,
// просрочка определяется лениво по ExpiresAt в момент проверки.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Revoked   bool
	CreatedAt time.Time
	ExpiresAt time.Time
}
