package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-authgate/budgetgate/internal/services"
	"github.com/go-authgate/budgetgate/internal/store"

	"github.com/gin-gonic/gin"
)

// ClientHandler exposes admin CRUD over OAuth clients as JSON.
type ClientHandler struct {
	clientService *services.ClientService
}

func NewClientHandler(cs *services.ClientService) *ClientHandler {
	return &ClientHandler{clientService: cs}
}

type clientRequest struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"allowed_scopes"`
	RedirectURIs []string `json:"redirect_uris"`
}

type rotateSecretRequest struct {
	ClientSecret string `json:"client_secret"`
}

// ListClients handles GET /admin/clients?page=&page_size=&search=
func (h *ClientHandler) ListClients(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(store.DefaultPageSize)))
	params := store.NewPaginationParams(page, pageSize, c.Query("search"))

	clients, pagination, err := h.clientService.ListClients(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"clients":    clients,
		"pagination": pagination,
	})
}

// CreateClient handles POST /admin/clients. The plaintext secret appears in
// this response only.
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}

	resp, err := h.clientService.CreateClient(c.Request.Context(), principalID(c), services.CreateClientRequest{
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Scopes:       req.Scopes,
		RedirectURIs: req.RedirectURIs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusCreated, resp)
}

// GetClient handles GET /admin/clients/:id
func (h *ClientHandler) GetClient(c *gin.Context) {
	resp, err := h.clientService.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateClient handles PUT /admin/clients/:id. Omitted lists are left unchanged.
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}

	resp, err := h.clientService.UpdateClient(c.Request.Context(), principalID(c), c.Param("id"),
		services.UpdateClientRequest{
			Scopes:       req.Scopes,
			RedirectURIs: req.RedirectURIs,
		})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RotateSecret handles POST /admin/clients/:id/secret. An empty body
// generates a new secret.
func (h *ClientHandler) RotateSecret(c *gin.Context) {
	var req rotateSecretRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badJSON(c)
			return
		}
	}

	resp, err := h.clientService.RotateSecret(c.Request.Context(), principalID(c), c.Param("id"), req.ClientSecret)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// DeleteClient handles DELETE /admin/clients/:id
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.clientService.DeleteClient(c.Request.Context(), principalID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func badJSON(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             errInvalidRequest,
		"error_description": "Request body must be valid JSON",
	})
}
