package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hirewire/authcore/internal/domain"
	"github.com/hirewire/authcore/internal/usecase"
)

// SessionHandler exposes the session risk engine and the security event
// feed. Routes live on the JWT-guarded group; the login flow that calls
// "create session" authenticates with a service token.
type SessionHandler struct {
	sessions *usecase.SessionUsecase
	events   domain.EventRecorder
}

// NewSessionHandler registers the session routes.
func NewSessionHandler(e *echo.Group, sessions *usecase.SessionUsecase, events domain.EventRecorder) {
	handler := &SessionHandler{sessions: sessions, events: events}

	e.POST("/sessions", handler.Create)
	e.POST("/sessions/validate", handler.Validate)
	e.DELETE("/sessions/:id", handler.Invalidate)
	e.DELETE("/sessions", handler.InvalidateAll)
	e.GET("/sessions/analytics", handler.Analytics)
	e.GET("/security/events", handler.RecentEvents)
}

type validateRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// Create opens a session for the authenticated user at login.
func (h *SessionHandler) Create(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	session, err := h.sessions.CreateSession(c.Request().Context(), userID, requestContext(c))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// Validate checks the current request against a session and returns the
// risk verdict, including whether re-authentication is required.
func (h *SessionHandler) Validate(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	validation, err := h.sessions.ValidateSession(c.Request().Context(), req.SessionID, requestContext(c))
	if err != nil {
		return mapError(c, err)
	}
	if !validation.Valid {
		return c.JSON(http.StatusUnauthorized, validation)
	}
	return c.JSON(http.StatusOK, validation)
}

// Invalidate revokes one session (logout).
func (h *SessionHandler) Invalidate(c echo.Context) error {
	if err := h.sessions.InvalidateSession(c.Request().Context(), c.Param("id"), requestContext(c)); err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "session_invalidated"})
}

// InvalidateAll revokes every session of the authenticated user, used on
// password reset or account disable.
func (h *SessionHandler) InvalidateAll(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	revoked, err := h.sessions.InvalidateAllUserSessions(c.Request().Context(), userID, requestContext(c))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": revoked})
}

// Analytics returns the per-user session aggregates for the dashboard.
func (h *SessionHandler) Analytics(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	analytics, err := h.sessions.Analytics(c.Request().Context(), userID)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, analytics)
}

// RecentEvents returns the newest security events for the authenticated user.
func (h *SessionHandler) RecentEvents(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	events, err := h.events.RecentByUser(c.Request().Context(), userID, 50)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}
