// Package auth implements the signed-cookie session scheme. Session
// management proper is outside the capture core; handlers only ever see the
// user id this package puts on the request context.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const UserIDKey contextKey = "userID"

const (
	CookieName     = "auth_token"
	cookieLifetime = 7 * 24 * time.Hour
)

var cookieSecret = []byte(secretKey())

func secretKey() string {
	if key := os.Getenv("COOKIE_SECRET"); key != "" {
		return key
	}
	// Development fallback only.
	return "capturebox-dev-secret-change-in-prod"
}

// CreateSignedCookie returns a cookie value of the form
// base64(userID.expiration.signature).
func CreateSignedCookie(userID int) string {
	expiration := time.Now().Add(cookieLifetime).Unix()
	data := fmt.Sprintf("%d.%d", userID, expiration)
	signature := signData(data)
	return base64.URLEncoding.EncodeToString([]byte(data + "." + signature))
}

// ValidateSignedCookie checks signature and expiry and returns the user ID.
func ValidateSignedCookie(cookieValue string) (int, error) {
	decoded, err := base64.URLEncoding.DecodeString(cookieValue)
	if err != nil {
		return 0, fmt.Errorf("invalid cookie encoding")
	}

	parts := strings.Split(string(decoded), ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid cookie format")
	}
	userIDStr, expirationStr, signature := parts[0], parts[1], parts[2]

	if !verifySignature(userIDStr+"."+expirationStr, signature) {
		return 0, fmt.Errorf("invalid signature")
	}

	expiration, err := strconv.ParseInt(expirationStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiration")
	}
	if time.Now().Unix() > expiration {
		return 0, fmt.Errorf("cookie expired")
	}

	userID, err := strconv.Atoi(userIDStr)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID")
	}
	return userID, nil
}

func signData(data string) string {
	h := hmac.New(sha256.New, cookieSecret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func verifySignature(data, signature string) bool {
	return hmac.Equal([]byte(signData(data)), []byte(signature))
}

// GetUserIDFromContext retrieves the user ID the auth middleware stored.
func GetUserIDFromContext(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(UserIDKey).(int)
	return userID, ok
}

// SetAuthCookie sets the signed auth cookie on the response.
func SetAuthCookie(w http.ResponseWriter, userID int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    CreateSignedCookie(userID),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cookieLifetime / time.Second),
	})
}

// ClearAuthCookie clears the auth cookie.
func ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
