package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/tokengate"
	"github.com/MrEthical07/tokengate/internal/flows"
)

type handler struct {
	engine    Engine
	exchanger OAuthExchanger
	ready     func(ctx context.Context) error
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
	Username string `json:"username" validate:"required,max=32"`
	FullName string `json:"fullName" validate:"max=100"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"accessToken"`
	AllDevices   bool   `json:"allDevices"`
}

type oauthRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectURI string `json:"redirectUri"`
	State       string `json:"state"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	AccessToken      string       `json:"accessToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshToken     string       `json:"refreshToken"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
	User             userResponse `json:"user"`
}

type meResponse struct {
	userResponse
	Active bool `json:"active"`
}

type logoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toUser(u tokengate.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
		Role:     u.Role,
	}
}

func toSession(s *tokengate.Session) sessionResponse {
	return sessionResponse{
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt.UTC(),
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt.UTC(),
		User:             toUser(s.User),
	}
}

// bind decodes and validates the JSON body into dst.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return err
	}
	return c.Validate(dst)
}

func (h *handler) health(c echo.Context) error {
	if h.ready != nil {
		if err := h.ready(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.engine.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSession(s))
}

func (h *handler) register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.engine.Register(c.Request().Context(), tokengate.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toSession(s))
}

func (h *handler) refresh(c echo.Context) error {
	var req refreshRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	s, err := h.engine.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSession(s))
}

// logout never fails on revocation errors; only an unreadable body is rejected.
func (h *handler) logout(c echo.Context) error {
	var req logoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	access := req.AccessToken
	if access == "" {
		access, _ = flows.ExtractBearer(c.Request().Header.Get(echo.HeaderAuthorization))
	}

	h.engine.Logout(c.Request().Context(), tokengate.LogoutRequest{
		AccessToken:  access,
		RefreshToken: req.RefreshToken,
		AllDevices:   req.AllDevices,
	})
	return c.JSON(http.StatusOK, logoutResponse{Success: true, Message: "Logged out successfully"})
}

func (h *handler) oauth(c echo.Context) error {
	if h.exchanger == nil {
		return tokengate.ErrFeatureUnavailable
	}
	var req oauthRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	provider := strings.ToLower(c.Param("provider"))

	ctx := c.Request().Context()
	ident, err := h.exchanger.Exchange(ctx, provider, req.Code, req.RedirectURI)
	if err != nil {
		return exchangeError(err)
	}
	s, err := h.engine.LoginWithIdentity(ctx, provider, ident)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSession(s))
}

func (h *handler) me(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := tokengate.IdentityFromContext(ctx)
	if !ok || id == nil {
		// Only reachable when the policy leaves /api/auth/me public.
		return tokengate.ErrNoTokenProvided
	}
	u, err := h.engine.User(ctx, id.OwnerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResponse{userResponse: toUser(u), Active: u.Active})
}
