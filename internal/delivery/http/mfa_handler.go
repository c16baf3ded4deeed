package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hirewire/authcore/internal/domain"
	"github.com/hirewire/authcore/internal/usecase"
)

// MFAHandler is the HTTP delivery layer for MFA enrollment and verification.
// All routes are JWT-guarded; the acting user comes from the token claims,
// never from the request body.
type MFAHandler struct {
	usecase *usecase.MFAUsecase
}

// NewMFAHandler registers the MFA lifecycle routes on an authenticated group.
func NewMFAHandler(e *echo.Group, u *usecase.MFAUsecase) {
	handler := &MFAHandler{usecase: u}

	e.POST("/mfa/setup", handler.Setup)
	e.POST("/mfa/enable", handler.Enable)
	e.POST("/mfa/verify", handler.Verify)
	e.POST("/mfa/disable", handler.Disable)
	e.POST("/mfa/backup-codes/regenerate", handler.RegenerateBackupCodes)
	e.GET("/mfa/status", handler.Status)
}

// tokenRequest carries a 6-digit TOTP code or an XXXXX-XXXXX backup code.
type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type setupRequest struct {
	AccountName string `json:"account_name" validate:"required,email"`
}

// requestContext extracts the fingerprinting inputs from the request.
func requestContext(c echo.Context) domain.RequestContext {
	return domain.RequestContext{
		IPAddress:      c.RealIP(),
		UserAgent:      c.Request().UserAgent(),
		AcceptLanguage: c.Request().Header.Get("Accept-Language"),
		AcceptEncoding: c.Request().Header.Get("Accept-Encoding"),
	}
}

// mapError translates domain errors to HTTP statuses. Wrong-state errors map
// to 409 so clients can tell an ordering mistake from a failed credential.
func mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	case errors.Is(err, domain.ErrAuthentication):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	case errors.Is(err, domain.ErrNotConfigured):
		return c.JSON(http.StatusConflict, echo.Map{"error": "mfa not configured"})
	case errors.Is(err, domain.ErrAlreadyConfigured):
		return c.JSON(http.StatusConflict, echo.Map{"error": "mfa already enabled"})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// Setup initiates enrollment and returns the secret, provisioning URI and
// backup codes. This response is the only time they exist in plaintext.
func (h *MFAHandler) Setup(c echo.Context) error {
	var req setupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	userID, _ := c.Get("user_id").(string)
	setup, err := h.usecase.EnableMFA(c.Request().Context(), userID, req.AccountName, requestContext(c))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, setup)
}

// Enable verifies the first code and turns MFA on for the account.
func (h *MFAHandler) Enable(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	userID, _ := c.Get("user_id").(string)
	if err := h.usecase.VerifyAndEnableMFA(c.Request().Context(), userID, req.Token, requestContext(c)); err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "mfa_enabled"})
}

// Verify checks a live token during a step-up or login challenge.
func (h *MFAHandler) Verify(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	userID, _ := c.Get("user_id").(string)
	verification, err := h.usecase.VerifyToken(c.Request().Context(), userID, req.Token, requestContext(c))
	if err != nil {
		return mapError(c, err)
	}
	if !verification.Valid {
		// Lockout and bad codes look the same on the wire: invalid plus
		// an attempts-remaining count.
		return c.JSON(http.StatusUnauthorized, verification)
	}
	return c.JSON(http.StatusOK, verification)
}

// Disable turns MFA off; requires a currently valid token.
func (h *MFAHandler) Disable(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	userID, _ := c.Get("user_id").(string)
	if err := h.usecase.DisableMFA(c.Request().Context(), userID, req.Token, requestContext(c)); err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "mfa_disabled"})
}

// RegenerateBackupCodes replaces the code set; requires a valid token.
func (h *MFAHandler) RegenerateBackupCodes(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	userID, _ := c.Get("user_id").(string)
	codes, err := h.usecase.RegenerateBackupCodes(c.Request().Context(), userID, req.Token, requestContext(c))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"backup_codes": codes})
}

// Status returns the read-only MFA projection for settings pages.
func (h *MFAHandler) Status(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	status, err := h.usecase.Status(c.Request().Context(), userID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}
