// token реализует выпуск и проверку подписанных токен-конвертов.
//
// Пакет — единственный владелец подписывающего секрета и часов:
//   - access-конверт: {sub, iat, exp}, короткий TTL;
//   - refresh-конверт: {sub, jti, iat, exp}, длинный TTL; jti указывает
//     на серверную запись models.RefreshToken.
//
// Manager не имеет побочных эффектов кроме чтения часов: он не ходит
// в хранилище и безопасен для конкурентного использования без блокировок.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/auth-service/internal/config"
)

var (
	// ErrInvalidSubject — пустой идентификатор пользователя или записи при выпуске.
	ErrInvalidSubject = errors.New("invalid subject")
	// ErrInvalidTTL — неположительный TTL при выпуске refresh-конверта.
	ErrInvalidTTL = errors.New("invalid ttl")
	// ErrMalformed — конверт не парсится или подпись не сходится.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired — корректно подписанный конверт с истёкшим exp.
	// Отделён от ErrMalformed: вызывающие реагируют по-разному
	// (просрочка против подделки).
	ErrExpired = errors.New("token expired")
)

// Claims — разобранное содержимое конверта.
type Claims struct {
	// UserID — claim sub.
	UserID uuid.UUID
	// RecordID — claim jti; uuid.Nil для access-конвертов.
	RecordID uuid.UUID
	IssuedAt time.Time
	// ExpiresAt — claim exp (UTC).
	ExpiresAt time.Time
}

type envelopeClaims struct {
	jwt.RegisteredClaims
}

// Manager выпускает и проверяет конверты обоих типов.
type Manager struct {
	cfg config.AuthConfig
	now func() time.Time
}

// New создает Manager поверх параметров AuthConfig.
func New(cfg config.AuthConfig) *Manager {
	return &Manager{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// IssueAccessToken подписывает access-конверт {sub, iat, exp} с exp = now + AccessTokenTTL.
// now передается вызывающим, чтобы весь выпуск пары токенов шёл от одного чтения часов.
func (m *Manager) IssueAccessToken(userID uuid.UUID, now time.Time) (string, error) {
	const op = "token.IssueAccessToken"

	if userID == uuid.Nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidSubject)
	}

	claims := envelopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(m.cfg.Audience),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// IssueRefreshToken подписывает refresh-конверт {sub, jti, iat, exp}.
// TTL приходит от вызывающего: он же кладет now+ttl в expires_at записи
// хранилища, так что конверт и запись всегда согласованы.
func (m *Manager) IssueRefreshToken(userID, recordID uuid.UUID, ttl time.Duration, now time.Time) (string, error) {
	const op = "token.IssueRefreshToken"

	if userID == uuid.Nil || recordID == uuid.Nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidSubject)
	}

	if ttl <= 0 {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidTTL)
	}

	claims := envelopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        recordID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(m.cfg.Audience),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Parse проверяет подпись и срок действия конверта и возвращает его claims.
// Ошибки: ErrExpired для корректно подписанного, но просроченного конверта;
// ErrMalformed для всего остального (мусор, чужая подпись, чужой issuer/audience,
// не-UUID sub/jti).
func (m *Manager) Parse(raw string) (*Claims, error) {
	const op = "token.Parse"

	parsed, err := jwt.ParseWithClaims(raw, &envelopeClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
			}

			return []byte(m.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience...),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	claims, ok := parsed.Claims.(*envelopeClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
	}

	recordID := uuid.Nil
	if claims.ID != "" {
		recordID, err = uuid.Parse(claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, ErrMalformed)
		}
	}

	out := &Claims{
		UserID:   uid,
		RecordID: recordID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}

	return out, nil
}
