// api содержит реализацию HTTP/JSON-эндпоинтов аутентификации.
// Здесь выполняется только маппинг данных и ошибок доменного слоя (service) в HTTP.
// Вся валидация и бизнес-логика находятся в пакете service.
//
// Принципы:
//   - Контекст запроса прокидывается в сервис без потерь;
//   - Ошибки сервиса явно транслируются в статусы:
//   - RequiredError/ErrInvalidEmail/ErrWeakPassword -> 400;
//   - ErrEmailTaken -> 409;
//   - ErrNotAuthorized/ErrInvalidToken/ErrTokenExpired/ErrTokenRevoked/
//     ErrUserNotFound/storage.ErrNotFound -> 401 с единым телом "not authorized"
//     (семейство отказов снаружи неразличимо, чтобы не допускать
//     перечисления аккаунтов);
//   - иные ошибки -> 500 c единым безопасным сообщением.
//
// Безопасность:
//   - Для 500 наружу не утекают детали внутренних ошибок; подробности должны
//     попадать в логи через middleware на уровне сервера.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pribylovaa/auth-service/internal/models"
	"github.com/pribylovaa/auth-service/internal/service"
	"github.com/pribylovaa/auth-service/internal/storage"
)

type AuthServer struct {
	service *service.Service
}

// NewAuthServer создаёт HTTP-сервер авторизации поверх сервисного слоя.
func NewAuthServer(service *service.Service) *AuthServer {
	return &AuthServer{service: service}
}

// RegisterRoutes регистрирует эндпоинты аутентификации.
func (s *AuthServer) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/auth/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/refresh", s.refresh).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/logout", s.logout).Methods(http.MethodPost)
}

// userPayload — публичное представление пользователя (без хэша пароля).
type userPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// authPayload — ответ register/login/refresh.
type authPayload struct {
	User            userPayload `json:"user"`
	AccessToken     string      `json:"access_token"`
	RefreshToken    string      `json:"refresh_token"`
	AccessExpiresAt int64       `json:"access_expires_at"`
}

func toUserPayload(u *models.User) userPayload {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}

	return userPayload{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Roles:     roles,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func toAuthPayload(u *models.User, pair *models.TokenPair) authPayload {
	return authPayload{
		User:            toUserPayload(u),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt.Unix(),
	}
}

// register регистрирует пользователя и возвращает пару токенов.
func (s *AuthServer) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		AcceptTerms bool   `json:"accept_terms"`
	}

	if !parseJSON(w, r, &req) {
		return
	}

	user, pair, err := s.service.Register(r.Context(), req.Name, req.Email, req.Password, req.AcceptTerms)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuthPayload(user, pair))
}

// login аутентифицирует пользователя и возвращает пару токенов.
func (s *AuthServer) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if !parseJSON(w, r, &req) {
		return
	}

	user, pair, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthPayload(user, pair))
}

// refresh выпускает новый access-токен по refresh-токену.
// Refresh-токен в ответе совпадает с предъявленным (ротации нет).
func (s *AuthServer) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if !parseJSON(w, r, &req) {
		return
	}

	user, pair, err := s.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthPayload(user, pair))
}

// logout отзывает refresh-токен.
func (s *AuthServer) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if !parseJSON(w, r, &req) {
		return
	}

	if err := s.service.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func parseJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeServiceError транслирует ошибки доменного слоя в HTTP-статусы.
func writeServiceError(w http.ResponseWriter, err error) {
	var required *service.RequiredError

	switch {
	case errors.As(err, &required):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": required.Error()})
	case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already taken"})
	case errors.Is(err, service.ErrNotAuthorized),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authorized"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
