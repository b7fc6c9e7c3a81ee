package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hireHub/internal/api/middleware"
	"hireHub/internal/auth"
	"hireHub/internal/database"
)

const refreshTokenCookieName = "refresh_token"
const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"
const loginRateLimitKeyPrefix = "auth:login:rate:"

// AuthHandler 处理注册、登录、刷新与退出。
type AuthHandler struct {
	db                    *gorm.DB
	authService           *auth.AuthService
	redis                 redis.UniversalClient
	logger                *slog.Logger
	loginRateLimitPerHour int
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, loginRateLimitPerHour int) *AuthHandler {
	return &AuthHandler{
		db:                    db,
		authService:           authService,
		redis:                 redisClient,
		logger:                logger,
		loginRateLimitPerHour: loginRateLimitPerHour,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// Register 创建新的招聘专员账号。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.String("username", req.Username))

	var existing database.User
	if err := h.db.WithContext(ctx).Where("username = ?", req.Username).First(&existing).Error; err == nil {
		logger.Info("register conflict: user already exists")
		Conflict(c, "username already taken")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Username:     req.Username,
		PasswordHash: hashed,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	c.Status(http.StatusCreated)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Login 校验口令并返回 Token，按 IP 做每小时限流。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.String("username", req.Username))

	if h.loginRateLimitPerHour > 0 && h.redis != nil {
		key := loginRateLimitKeyPrefix + c.ClientIP()
		count, err := incrWithTTL(ctx, h.redis, key, time.Hour)
		if err != nil {
			logger.Warn("login rate counter failed", slog.Any("error", err))
		} else if count > int64(h.loginRateLimitPerHour) {
			Error(c, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Unauthorized(c)
			return
		}
		logger.Error("login lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login rejected: wrong password")
		Unauthorized(c)
		return
	}

	pair, err := h.authService.GenerateTokenPair(user.ID, user.MustChangePassword)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: user.MustChangePassword,
	})
}

// Refresh 用刷新令牌换取新的令牌对。
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw, err := c.Cookie(refreshTokenCookieName)
	if err != nil || raw == "" {
		Unauthorized(c)
		return
	}

	claims, err := h.authService.ValidateToken(raw)
	if err != nil || claims.TokenType != "refresh" {
		Unauthorized(c)
		return
	}

	ctx := c.Request.Context()
	if h.redis != nil && claims.ID != "" {
		blacklisted, err := h.redis.Exists(ctx, refreshTokenBlacklistKeyPrefix+claims.ID).Result()
		if err == nil && blacklisted > 0 {
			Unauthorized(c)
			return
		}
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		Unauthorized(c)
		return
	}

	pair, err := h.authService.GenerateTokenPair(user.ID, user.MustChangePassword)
	if err != nil {
		Internal(c, "internal error")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword: user.MustChangePassword,
	})
}

// Logout 把当前刷新令牌拉黑并清掉 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	raw, err := c.Cookie(refreshTokenCookieName)
	if err == nil && raw != "" && h.redis != nil {
		if claims, err := h.authService.ValidateToken(raw); err == nil && claims.ID != "" {
			ttl := time.Until(claims.ExpiresAt.Time)
			if ttl > 0 {
				key := refreshTokenBlacklistKeyPrefix + claims.ID
				if err := h.redis.Set(c.Request.Context(), key, "1", ttl).Err(); err != nil {
					middleware.LoggerFromContext(c).Warn("blacklist refresh token failed", slog.Any("error", err))
				}
			}
		}
	}

	c.SetCookie(refreshTokenCookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// ChangePassword 修改口令并清除强制改密标记。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.OldPassword, user.PasswordHash) {
		Forbidden(c, "old password mismatch")
		return
	}

	hashed, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		Internal(c, "internal error")
		return
	}

	updates := map[string]any{
		"password_hash":        hashed,
		"must_change_password": false,
	}
	if err := h.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		Internal(c, "internal error")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	maxAge := int(h.authService.RefreshTokenTTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshTokenCookieName, token, maxAge, "/", "", false, true)
}
