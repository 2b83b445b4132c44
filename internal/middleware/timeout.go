package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// WithTimeout навешивает дедлайн на контекст запроса, если его ещё нет.
// Отмена контекста обрывает висящие обращения к хранилищу ниже по стеку.
func WithTimeout(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Deadline(); ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
