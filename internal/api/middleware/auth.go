package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"sentinel/pkg/crypto"
)

// TokenHeader - заголовок с shared-secret токеном входящих webhook'ов
const TokenHeader = "X-Webhook-Token"

// WebhookAuth возвращает middleware проверки shared-secret токена
//
// Токен хранится только в виде bcrypt-хеша (конфигурация
// WEBHOOK_TOKEN_HASH); сам секрет знает лишь отправитель сигналов.
// Пустой хеш отключает проверку - допустимо только в simulate режиме,
// config.Load() требует хеш при RUN_MODE=live.
func WebhookAuth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(TokenHeader)
			if token == "" || !crypto.TokenMatches(token, tokenHash) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// debugUsername и debugPassword для защиты debug endpoints.
// Загружаются из переменных окружения DEBUG_USERNAME и DEBUG_PASSWORD.
var (
	debugUsername = os.Getenv("DEBUG_USERNAME")
	debugPassword = os.Getenv("DEBUG_PASSWORD")
)

// DebugAuth - middleware для защиты debug/pprof endpoints
//
// Использует HTTP Basic Authentication с constant-time сравнением.
// Если DEBUG_USERNAME/DEBUG_PASSWORD не установлены, доступ открыт
// только в development (ENV=development или пустой ENV).
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if debugUsername == "" || debugPassword == "" {
			if env := os.Getenv("ENV"); env == "development" || env == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(debugPassword)) == 1

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
