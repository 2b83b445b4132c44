// password — односторонее хэширование паролей для каталога пользователей.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash хэширует пароль с помощью bcrypt.
func Hash(plain string) (string, error) {
	const op = "pkg.password.Hash"

	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// Verify сравнивает пароль с хэшем.
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
