package management

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qbridge-dev/qbridge/internal/client"
)

// requireAdmin aborts when no Okta management API client is configured.
func (h *Handler) requireAdmin(c *gin.Context) *client.OktaAdmin {
	if h.admin == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "okta management API is not configured"})
		return nil
	}
	return h.admin
}

// oktaError maps an Okta API failure onto the management response, keeping
// the upstream status code when the failure carries one.
func oktaError(c *gin.Context, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.StatusCode, gin.H{
			"error":   apiErr.ErrorSummary,
			"code":    apiErr.ErrorCode,
			"errorId": apiErr.ErrorID,
		})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

// ListOktaUsers lists directory users, optionally filtered by search.
func (h *Handler) ListOktaUsers(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	users, err := admin.ListUsers(c.Request.Context(), c.Query("search"), limit)
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// GetOktaUser fetches a user by ID or login.
func (h *Handler) GetOktaUser(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	user, err := admin.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreateOktaUser creates a directory user, staged or active.
func (h *Handler) CreateOktaUser(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	var body struct {
		Profile     client.UserProfile      `json:"profile"`
		Credentials *client.UserCredentials `json:"credentials"`
		Activate    bool                    `json:"activate"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	user, err := admin.CreateUser(c.Request.Context(), body.Profile, body.Credentials, body.Activate)
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// UpdateOktaUser updates a user's profile.
func (h *Handler) UpdateOktaUser(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	var body struct {
		Profile client.UserProfile `json:"profile"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	user, err := admin.UpdateUser(c.Request.Context(), c.Param("id"), body.Profile)
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeactivateOktaUser deactivates a user.
func (h *Handler) DeactivateOktaUser(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	if err := admin.DeactivateUser(c.Request.Context(), c.Param("id")); err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteOktaUser deletes a deactivated user.
func (h *Handler) DeleteOktaUser(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	if err := admin.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListOktaApplications lists applications, optionally filtered.
func (h *Handler) ListOktaApplications(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	apps, err := admin.ListApplications(c.Request.Context(), c.Query("filter"))
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps, "count": len(apps)})
}

// GetOktaApplication fetches an application by ID.
func (h *Handler) GetOktaApplication(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	app, err := admin.GetApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// ListOktaApplicationUsers lists the users assigned to an application.
func (h *Handler) ListOktaApplicationUsers(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	users, err := admin.ListApplicationUsers(c.Request.Context(), c.Param("id"))
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// AssignOktaUserToApplication assigns a user to an application.
func (h *Handler) AssignOktaUserToApplication(c *gin.Context) {
	admin := h.requireAdmin(c)
	if admin == nil {
		return
	}
	assignment, err := admin.AssignUserToApplication(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		oktaError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}
