package handlers

import (
	"errors"
	"net/http"

	"chess-orchestrator/internal/models"
	"chess-orchestrator/internal/services"
	"chess-orchestrator/pkg/uci"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EngineHandler exposes the engine command surface over HTTP.
type EngineHandler struct {
	engineService   *services.EngineService
	analysisService *services.AnalysisService
}

// NewEngineHandler creates a new engine handler.
func NewEngineHandler(engineService *services.EngineService, analysisService *services.AnalysisService) *EngineHandler {
	return &EngineHandler{
		engineService:   engineService,
		analysisService: analysisService,
	}
}

type bestMovesRequest struct {
	ID         string               `json:"id"`
	EnginePath string               `json:"enginePath" binding:"required"`
	Tab        string               `json:"tab" binding:"required"`
	GoMode     uci.GoMode           `json:"goMode" binding:"required"`
	Options    models.EngineOptions `json:"options"`
}

type engineKeyRequest struct {
	Engine string `json:"engine" binding:"required"`
	Tab    string `json:"tab" binding:"required"`
}

type analyzeGameRequest struct {
	ID         string                 `json:"id"`
	EnginePath string                 `json:"enginePath" binding:"required"`
	GoMode     uci.GoMode             `json:"goMode" binding:"required"`
	Options    models.AnalysisOptions `json:"options"`
	UciOptions []models.EngineOption  `json:"uciOptions"`
}

// GetBestMoves starts or reuses an engine session.
// POST /api/engines/best-moves
func (h *EngineHandler) GetBestMoves(c *gin.Context) {
	var request bestMovesRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	cached, err := h.engineService.GetBestMoves(request.ID, request.EnginePath, request.Tab, request.GoMode, request.Options)
	if err != nil {
		logrus.Errorf("get best moves failed (tab=%s engine=%s): %v", request.Tab, request.EnginePath, err)
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	if cached != nil {
		c.JSON(http.StatusOK, gin.H{
			"cached":    true,
			"progress":  cached.Progress,
			"bestLines": cached.BestLines,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cached": false, "id": request.ID})
}

// StopEngine requests the running search to end.
// POST /api/engines/stop
func (h *EngineHandler) StopEngine(c *gin.Context) {
	var request engineKeyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	if err := h.engineService.StopEngine(request.Engine, request.Tab); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// KillEngine tears down one engine session.
// POST /api/engines/kill
func (h *EngineHandler) KillEngine(c *gin.Context) {
	var request engineKeyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	h.engineService.KillEngine(request.Engine, request.Tab)
	c.JSON(http.StatusOK, gin.H{"status": "killed"})
}

// KillEngines tears down all sessions of a tab.
// POST /api/engines/kill-all
func (h *EngineHandler) KillEngines(c *gin.Context) {
	var request struct {
		Tab string `json:"tab" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	h.engineService.KillEngines(request.Tab)
	c.JSON(http.StatusOK, gin.H{"status": "killed"})
}

// GetEngineLogs returns the session's chronological wire log.
// GET /api/engines/logs?engine=...&tab=...
func (h *EngineHandler) GetEngineLogs(c *gin.Context) {
	engine := c.Query("engine")
	tab := c.Query("tab")
	if engine == "" || tab == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "engine and tab are required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": h.engineService.GetEngineLogs(engine, tab)})
}

// AnalyzeGame runs the whole-game analysis pipeline synchronously; progress
// events stream over the websocket feed while the request is in flight.
// POST /api/engines/analyze-game
func (h *EngineHandler) AnalyzeGame(c *gin.Context) {
	var request analyzeGameRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	analysis, err := h.analysisService.AnalyzeGame(c.Request.Context(), request.ID, request.EnginePath, request.GoMode, request.Options, request.UciOptions)
	if err != nil {
		logrus.Errorf("game analysis failed (id=%s): %v", request.ID, err)
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": request.ID, "analysis": analysis})
}

// GetEngineConfig probes an engine binary for its identity and options.
// GET /api/engines/config?path=...
func (h *EngineHandler) GetEngineConfig(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	config, err := h.analysisService.GetEngineConfig(path)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, config)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidPosition),
		errors.Is(err, models.ErrIllegalMove),
		errors.Is(err, models.ErrInvalidMultiPV),
		errors.Is(err, models.ErrInvalidEngineState),
		errors.Is(err, models.ErrMissingReferenceDatabase):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEngineTimeout),
		errors.Is(err, models.ErrEngineUnresponsive):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
