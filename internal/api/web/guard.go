package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	tokenCookie = "accessToken"
	loginPath   = "/login"
)

// protectedPrefixes разделы панели, куда без токена не пускают
var protectedPrefixes = []string{
	"/dashboard",
	"/surveillance-view",
	"/event-records",
	"/alert-panel",
	"/system-settings",
	"/logout",
}

// requestToken ищет токен в cookie accessToken, затем в заголовке Authorization
func requestToken(r *http.Request) string {
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func isProtected(path string) bool {
	if path == loginPath || path == "/" {
		return false
	}
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// tokenSource отдаёт токен текущей сессии консоли
type tokenSource interface {
	AccessToken() (string, bool)
}

// validToken сверяет токен запроса с токеном сессии. Бэкенд видит только токен сессии,
// поэтому чужой токен из cookie должен отсекаться здесь.
func validToken(session tokenSource, token string) bool {
	current, ok := session.AccessToken()
	if !ok || current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(current)) == 1
}

// Guard не пускает в защищённые разделы без токена сессии.
// Без токена запрос уходит на /login, с чужим или устаревшим токеном cookie ещё и сбрасывается.
func Guard(session tokenSource, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isProtected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := requestToken(r)
		if token == "" {
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}
		if !validToken(session, token) {
			clearTokenCookie(w)
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
