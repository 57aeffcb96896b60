package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
	"tavern-server/internal/service"
)

// AdminHandler serves the authoring endpoints behind JWT auth.
type AdminHandler struct {
	catalog   *service.CatalogService
	jwtSecret string
	logger    *zap.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(catalogService *service.CatalogService, jwtSecret string, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		catalog:   catalogService,
		jwtSecret: jwtSecret,
		logger:    logger.Named("AdminHandler"),
	}
}

// RegisterRoutes mounts the admin routes on the router.
func (h *AdminHandler) RegisterRoutes(router *gin.Engine) {
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(AdminAuthMiddleware(h.jwtSecret, h.logger))
	{
		adminGroup.GET("/cards", h.listCards)
		adminGroup.GET("/cards/:id", h.getCard)
		adminGroup.POST("/cards", h.createCard)
		adminGroup.PUT("/cards/:id", h.updateCard)
		adminGroup.DELETE("/cards/:id", h.deleteCard)

		adminGroup.GET("/npcs", h.listNPCs)
		adminGroup.GET("/npcs/:id", h.getNPC)
		adminGroup.POST("/npcs", h.createNPC)
		adminGroup.PUT("/npcs/:id", h.updateNPC)
		adminGroup.DELETE("/npcs/:id", h.deleteNPC)

		adminGroup.GET("/config", h.getConfig)
		adminGroup.PUT("/config", h.updateConfig)

		adminGroup.POST("/rebuild", h.rebuildIndex)
	}
}

func (h *AdminHandler) listCards(c *gin.Context) {
	cards, err := h.catalog.ListCards(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *AdminHandler) getCard(c *gin.Context) {
	card, err := h.catalog.GetCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *AdminHandler) createCard(c *gin.Context) {
	var card domain.Card
	if err := c.ShouldBindJSON(&card); err != nil {
		handleServiceError(c, h.logger, domain.ErrInvalidInput)
		return
	}
	if err := h.catalog.CreateCard(c.Request.Context(), &card); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (h *AdminHandler) updateCard(c *gin.Context) {
	var card domain.Card
	if err := c.ShouldBindJSON(&card); err != nil {
		handleServiceError(c, h.logger, domain.ErrInvalidInput)
		return
	}
	card.ID = c.Param("id")
	if err := h.catalog.UpdateCard(c.Request.Context(), &card); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *AdminHandler) deleteCard(c *gin.Context) {
	if err := h.catalog.DeleteCard(c.Request.Context(), c.Param("id")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) listNPCs(c *gin.Context) {
	npcs, err := h.catalog.ListNPCs(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, npcs)
}

func (h *AdminHandler) getNPC(c *gin.Context) {
	npc, err := h.catalog.GetNPC(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, npc)
}

func (h *AdminHandler) createNPC(c *gin.Context) {
	var npc domain.NPC
	if err := c.ShouldBindJSON(&npc); err != nil {
		handleServiceError(c, h.logger, domain.ErrInvalidInput)
		return
	}
	if err := h.catalog.CreateNPC(c.Request.Context(), &npc); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, npc)
}

func (h *AdminHandler) updateNPC(c *gin.Context) {
	var npc domain.NPC
	if err := c.ShouldBindJSON(&npc); err != nil {
		handleServiceError(c, h.logger, domain.ErrInvalidInput)
		return
	}
	npc.ID = c.Param("id")
	if err := h.catalog.UpdateNPC(c.Request.Context(), &npc); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, npc)
}

func (h *AdminHandler) deleteNPC(c *gin.Context) {
	if err := h.catalog.DeleteNPC(c.Request.Context(), c.Param("id")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) getConfig(c *gin.Context) {
	cfg, err := h.catalog.GetConfig(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *AdminHandler) updateConfig(c *gin.Context) {
	var cfg domain.GameConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		handleServiceError(c, h.logger, domain.ErrInvalidInput)
		return
	}
	if err := h.catalog.UpdateConfig(c.Request.Context(), &cfg); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *AdminHandler) rebuildIndex(c *gin.Context) {
	report, err := h.catalog.RebuildIndex(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, RebuildResponse{
		Indexed:    report.Indexed,
		Dropped:    report.Dropped,
		DroppedIDs: report.DroppedIDs,
	})
}
