package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
	"tavern-server/internal/service"
)

// GameHandler serves the player-facing gameplay endpoints. All routes require
// valid Telegram Mini App init data.
type GameHandler struct {
	game     *service.GameService
	botToken string
	logger   *zap.Logger
}

// NewGameHandler creates the gameplay handler.
func NewGameHandler(game *service.GameService, botToken string, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		game:     game,
		botToken: botToken,
		logger:   logger.Named("GameHandler"),
	}
}

// RegisterRoutes mounts the gameplay routes on the router.
func (h *GameHandler) RegisterRoutes(router *gin.Engine) {
	gameGroup := router.Group("/api/game")
	gameGroup.Use(TelegramAuthMiddleware(h.botToken, h.logger))
	{
		gameGroup.POST("/session", h.startSession)
		gameGroup.GET("/state", h.getState)
		gameGroup.GET("/next-card", h.nextCard)
		gameGroup.POST("/choice", h.makeChoice)
		gameGroup.POST("/end-turn", h.endTurn)
	}
}

func (h *GameHandler) startSession(c *gin.Context) {
	playerID, ok := playerIDFromContext(c)
	if !ok {
		handleServiceError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	state, created, err := h.game.StartSession(c.Request.Context(), playerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, SessionResponse{State: state, Created: created})
}

func (h *GameHandler) getState(c *gin.Context) {
	playerID, ok := playerIDFromContext(c)
	if !ok {
		handleServiceError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	state, _, err := h.game.StartSession(c.Request.Context(), playerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{State: state})
}

func (h *GameHandler) nextCard(c *gin.Context) {
	playerID, ok := playerIDFromContext(c)
	if !ok {
		handleServiceError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	ic, err := h.game.NextCard(c.Request.Context(), playerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCardResponse(ic))
}

func (h *GameHandler) makeChoice(c *gin.Context) {
	playerID, ok := playerIDFromContext(c)
	if !ok {
		handleServiceError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleServiceError(c, h.logger, domain.ErrInvalidInput)
		return
	}

	state, err := h.game.MakeChoice(c.Request.Context(), playerID, req.CardID, *req.OptionIndex)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ChoiceResponse{State: state})
}

func (h *GameHandler) endTurn(c *gin.Context) {
	playerID, ok := playerIDFromContext(c)
	if !ok {
		handleServiceError(c, h.logger, domain.ErrUnauthorized)
		return
	}

	result, err := h.game.EndTurn(c.Request.Context(), playerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, EndTurnResponse{
		State:    result.State,
		Summary:  newTurnSummaryResponse(result.Summary),
		GameOver: result.GameOver,
	})
}
