package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
)

const playerIDKey = "player_id"

// initDataMaxAge rejects replayed init data; Telegram stamps auth_date at the
// moment the Mini App opens.
const initDataMaxAge = 24 * time.Hour

// TelegramAuthMiddleware validates the Mini App init data passed in the
// X-Telegram-Init-Data header and stores the player id in the gin context.
func TelegramAuthMiddleware(botToken string, log *zap.Logger) gin.HandlerFunc {
	// Secret key derivation per the Mini App validation scheme.
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	secret := mac.Sum(nil)

	return func(c *gin.Context) {
		initData := c.GetHeader("X-Telegram-Init-Data")
		if initData == "" {
			log.Warn("Missing init data header")
			handleServiceError(c, log, domain.ErrUnauthorized)
			return
		}

		playerID, err := verifyInitData(initData, secret)
		if err != nil {
			log.Warn("Init data verification failed", zap.Error(err))
			handleServiceError(c, log, domain.ErrUnauthorized)
			return
		}

		c.Set(playerIDKey, playerID)
		c.Next()
	}
}

// verifyInitData checks the HMAC signature over the sorted key=value pairs and
// returns the authenticated Telegram user id.
func verifyInitData(initData string, secret []byte) (int64, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("malformed init data: %w", err)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return 0, fmt.Errorf("init data has no hash")
	}

	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	wantHash := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(wantHash), []byte(gotHash)) {
		return 0, fmt.Errorf("init data hash mismatch")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid auth_date: %w", err)
	}
	if time.Since(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("init data expired")
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return 0, fmt.Errorf("invalid user payload: %w", err)
	}
	if user.ID == 0 {
		return 0, fmt.Errorf("init data has no user id")
	}
	return user.ID, nil
}

// AdminAuthMiddleware validates a bearer JWT signed with the admin secret and
// requires the admin role claim.
func AdminAuthMiddleware(secret string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Authorization header missing")
			handleServiceError(c, log, domain.ErrUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Invalid Authorization header format")
			handleServiceError(c, log, domain.ErrUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Warn("Admin token verification failed", zap.Error(err))
			handleServiceError(c, log, domain.ErrUnauthorized)
			return
		}

		if role, _ := claims["role"].(string); role != "admin" {
			log.Warn("Token lacks admin role")
			handleServiceError(c, log, domain.ErrForbidden)
			return
		}

		if sub, _ := claims["sub"].(string); sub != "" {
			c.Set("admin_id", sub)
		}
		c.Next()
	}
}

// playerIDFromContext returns the authenticated player id set by the auth
// middleware.
func playerIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(playerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
