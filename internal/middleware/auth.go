// Package middleware содержит HTTP middleware сервиса приёма заказов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const adminKey contextKey = "admin"

const (
	adminCookieName = "admin_token"
	adminCookieTTL  = 12 * time.Hour
)

// AdminAuth выдаёт и проверяет административный доступ: подписанный cookie или заголовок Bearer.
type AdminAuth struct {
	token     []byte
	secretKey []byte
	now       func() time.Time
}

// NewAdminAuth создаёт проверку административного доступа. Пустой токен отключает доступ полностью.
func NewAdminAuth(adminToken string) *AdminAuth {
	token := []byte(strings.TrimSpace(adminToken))

	var key []byte
	if len(token) > 0 {
		sum := sha256.Sum256(append([]byte("admin-cookie:"), token...))
		key = sum[:]
	}

	return &AdminAuth{
		token:     token,
		secretKey: key,
		now:       time.Now,
	}
}

// Enabled сообщает, задан ли административный токен.
func (a *AdminAuth) Enabled() bool {
	return a != nil && len(a.token) > 0
}

// CheckToken сравнивает переданный токен с административным за постоянное время.
func (a *AdminAuth) CheckToken(token string) bool {
	if !a.Enabled() {
		return false
	}
	return hmac.Equal([]byte(strings.TrimSpace(token)), a.token)
}

// Identify отмечает запрос как административный, если предъявлен действующий cookie или Bearer-токен.
// Запросы без прав пропускаются дальше без изменений.
func (a *AdminAuth) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isAdminRequest(r) {
			r = r.WithContext(context.WithValue(r.Context(), adminKey, true))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin отклоняет запросы без административного доступа.
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) && !a.isAdminRequest(r) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), adminKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAdminCookie устанавливает подписанный cookie администратора.
func (a *AdminAuth) SetAdminCookie(w http.ResponseWriter) {
	expires := a.now().Add(adminCookieTTL)

	cookie := &http.Cookie{
		Name:     adminCookieName,
		Value:    a.sign(strconv.FormatInt(expires.Unix(), 10)),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AdminAuth) isAdminRequest(r *http.Request) bool {
	if !a.Enabled() {
		return false
	}

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if a.CheckToken(strings.TrimPrefix(h, "Bearer ")) {
			return true
		}
	}

	cookie, err := r.Cookie(adminCookieName)
	if err != nil {
		return false
	}
	return a.parseCookie(cookie.Value)
}

func (a *AdminAuth) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AdminAuth) parseCookie(cookieValue string) bool {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return false
	}

	expected := strings.Split(a.sign(parts[0]), ".")
	if !hmac.Equal([]byte(parts[1]), []byte(expected[1])) {
		return false
	}

	expiresUnix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return false
	}

	return a.now().Before(time.Unix(expiresUnix, 0))
}

// IsAdmin сообщает, отмечен ли запрос как административный.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(adminKey).(bool)
	return ok
}
