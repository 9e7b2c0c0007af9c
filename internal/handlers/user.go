package handlers

import (
	"net/http"

	"github.com/go-authgate/budgetgate/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHandler exposes admin user management as JSON.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(us *services.UserService) *UserHandler {
	return &UserHandler{userService: us}
}

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	Scopes   []string `json:"scopes"`
}

type updateUserRequest struct {
	Password *string  `json:"password"`
	Role     *string  `json:"role"`
	Scopes   []string `json:"scopes"`
	IsActive *bool    `json:"is_active"`
}

// CreateUser handles POST /admin/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}

	resp, err := h.userService.CreateUser(c.Request.Context(), principalID(c), services.CreateUserRequest{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Scopes:   req.Scopes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetUser handles GET /admin/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	resp, err := h.userService.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateUser handles PATCH /admin/users/:id. A role change is seen by
// session requests at once and by bearer callers on their next refresh.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}

	resp, err := h.userService.UpdateUser(c.Request.Context(), principalID(c), c.Param("id"),
		services.UpdateUserRequest{
			Password: req.Password,
			Role:     req.Role,
			Scopes:   req.Scopes,
			IsActive: req.IsActive,
		})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
