// service содержит бизнес-логику auth-сервиса:
// регистрацию/аутентификацию пользователей, выпуск/проверку токенов
// и работу с хранилищем через интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Ошибки возвращаются и далее маппятся
//     транспортом на HTTP-статусы (см. комментарии к переменным ошибок ниже).
//   - Ретраев внутри сервиса нет: транзиентная ошибка хранилища отдаётся
//     вызывающему как есть — повтор SaveRefreshToken выпустил бы вторую сессию.
package service

import (
	"errors"
	"fmt"

	"github.com/pribylovaa/auth-service/internal/cache"
	"github.com/pribylovaa/auth-service/internal/config"
	"github.com/pribylovaa/auth-service/internal/storage"
	"github.com/pribylovaa/auth-service/internal/token"
)

var (
	// ErrNotAuthorized — намеренно обобщённый отказ: неверные учётные данные,
	// неактивная или мягко удалённая учётная запись. Наружу все эти случаи
	// неразличимы, чтобы не допускать перечисления аккаунтов.
	// Транспорт: 401.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidToken — токен не парсится, подпись не сходится или в конверте
	// нет обязательных claims (sub/jti), либо владелец записи не совпадает с sub.
	// Транспорт: 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк.
	// Транспорт: 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — токен отозван (logout) и недействителен
	// независимо от срока. Транспорт: 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrUserNotFound — конверт валиден и запись жива, но пользователя
	// в каталоге больше нет. Внутренний вид; транспорт схлопывает в 401.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	// Транспорт: 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат или не проходит политику валидации.
	// Транспорт: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности.
	// Транспорт: 400.
	ErrWeakPassword = errors.New("password is too weak")
)

// RequiredError — отсутствующее обязательное поле запроса.
// Один типизированный вид «kind+field» вместо набора строковых констант
// на каждое поле. Транспорт: 400.
type RequiredError struct {
	Field string
}

func (e *RequiredError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	storage storage.Storage
	tokens  *token.Manager
	cfg     config.AuthConfig
	rcache  cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, tokens *token.Manager, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		tokens:  tokens,
		cfg:     cfg,
	}
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
