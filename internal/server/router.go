package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/scout/backend/internal/llm"
	"github.com/MarcoPoloResearchLab/scout/backend/internal/prompt"
	"github.com/MarcoPoloResearchLab/scout/backend/internal/roadmap"
	"github.com/MarcoPoloResearchLab/scout/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingUsersService   = errors.New("users service dependency required")
	errMissingRoadmapService = errors.New("roadmap service dependency required")
	errMissingGateway        = errors.New("completion gateway dependency required")
)

// CompletionGateway is the outbound model dependency as the handlers see it.
type CompletionGateway interface {
	Complete(ctx context.Context, userPrompt string) (json.RawMessage, error)
}

// Dependencies wires the handler to its collaborators.
type Dependencies struct {
	UsersService   *users.Service
	RoadmapService *roadmap.Service
	Gateway        CompletionGateway
	Logger         *zap.Logger
	Clock          func() time.Time
}

// NewHTTPHandler builds the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.RoadmapService == nil {
		return nil, errMissingRoadmapService
	}
	if deps.Gateway == nil {
		return nil, errMissingGateway
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:   deps.UsersService,
		roadmap: deps.RoadmapService,
		gateway: deps.Gateway,
		logger:  logger,
		clock:   clock,
	}

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)
	api.POST("/user/create", handler.handleCreateUser)
	api.POST("/start", handler.handleStart)
	api.POST("/next-question", handler.handleNextQuestion)
	api.POST("/generate-roadmap", handler.handleGenerateRoadmap)
	api.POST("/save-roadmap", handler.handleSaveRoadmap)
	api.GET("/roadmap/:name", handler.handleGetRoadmap)
	api.PATCH("/update-task", handler.handleUpdateTask)
	api.GET("/statistics/:name", handler.handleStatistics)

	return router, nil
}

type httpHandler struct {
	users   *users.Service
	roadmap *roadmap.Service
	gateway CompletionGateway
	logger  *zap.Logger
	clock   func() time.Time
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "backend is running"})
}

type createUserPayload struct {
	Name   string `json:"name"`
	Career string `json:"career"`
	Level  string `json:"level"`
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	var request createUserPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if users.NormalizeName(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name_required"})
		return
	}

	account, err := h.users.Upsert(c.Request.Context(), request.Name, request.Career, request.Level)
	if err != nil {
		h.logger.Error("user upsert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_create_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user_id": account.UserID,
		"name":    account.Name,
		"career":  account.Career,
		"level":   account.Level,
	})
}

type startPayload struct {
	Name   string `json:"name"`
	Career string `json:"career"`
}

// handleStart returns the fixed opening question; the model is only
// consulted from the second question onward.
func (h *httpHandler) handleStart(c *gin.Context) {
	var request startPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	name := strings.TrimSpace(request.Name)
	if name == "" {
		name = "there"
	}

	c.JSON(http.StatusOK, gin.H{
		"question": "Great choice, " + name + "! What is your current experience level in " + request.Career + "?",
		"options": []string{
			"Complete Beginner",
			"Some Basic Knowledge",
			"Intermediate Level",
			"Advanced Looking to Specialize",
		},
		"status": "CONTINUE",
	})
}

type exchangePayload struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
}

func toExchanges(messages []exchangePayload) []prompt.Exchange {
	history := make([]prompt.Exchange, 0, len(messages))
	for _, message := range messages {
		history = append(history, prompt.Exchange{Question: message.Question, Answer: message.Answer})
	}
	return history
}

type nextQuestionPayload struct {
	Messages   []exchangePayload `json:"messages"`
	UserAnswer string            `json:"user_answer"`
	Career     string            `json:"career"`
	Level      string            `json:"level"`
}

func (h *httpHandler) handleNextQuestion(c *gin.Context) {
	var request nextQuestionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if strings.TrimSpace(request.UserAnswer) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_answer_required"})
		return
	}

	reply, err := h.gateway.Complete(c.Request.Context(), prompt.NextQuestion(toExchanges(request.Messages), request.UserAnswer))
	if err != nil {
		h.respondGatewayError(c, err)
		return
	}

	// The gateway guarantees valid JSON; the model's shape is passed
	// through to the client unvalidated.
	c.Data(http.StatusOK, "application/json; charset=utf-8", reply)
}

type generateRoadmapPayload struct {
	Messages []exchangePayload `json:"messages"`
	Name     string            `json:"name"`
	Career   string            `json:"career"`
}

func (h *httpHandler) handleGenerateRoadmap(c *gin.Context) {
	var request generateRoadmapPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if len(request.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages_required"})
		return
	}
	name := strings.TrimSpace(request.Name)
	if name == "" {
		name = "User"
	}
	career := request.Career
	if career == "" {
		career = "your chosen path"
	}

	reply, err := h.gateway.Complete(c.Request.Context(), prompt.Roadmap(toExchanges(request.Messages), h.clock()))
	if err != nil {
		h.respondGatewayError(c, err)
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(reply, &payload); err != nil {
		h.logger.Error("model reply is not a JSON object", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": llm.ErrMalformedModelOutput.Error()})
		return
	}
	payload["user_name"] = name
	payload["career_path"] = career

	c.JSON(http.StatusOK, payload)
}

type saveRoadmapPayload struct {
	Name    string          `json:"name"`
	Roadmap json.RawMessage `json:"roadmap"`
}

func (h *httpHandler) handleSaveRoadmap(c *gin.Context) {
	var request saveRoadmapPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if users.NormalizeName(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name_required"})
		return
	}
	if len(request.Roadmap) == 0 || string(request.Roadmap) == "null" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roadmap_required"})
		return
	}

	var plan roadmap.Roadmap
	if err := json.Unmarshal(request.Roadmap, &plan); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_roadmap"})
		return
	}

	roadmapID, err := h.roadmap.Save(c.Request.Context(), request.Name, plan)
	if err != nil {
		if errors.Is(err, roadmap.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
			return
		}
		h.logger.Error("roadmap save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "roadmap_id": roadmapID})
}

type roadmapResponsePayload struct {
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name"`
	Roadmap   json.RawMessage `json:"roadmap"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (h *httpHandler) handleGetRoadmap(c *gin.Context) {
	document, err := h.roadmap.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, roadmap.ErrRoadmapNotFound) || errors.Is(err, users.ErrEmptyName) {
			c.JSON(http.StatusNotFound, gin.H{"error": "roadmap_not_found"})
			return
		}
		h.logger.Error("roadmap fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch_failed"})
		return
	}

	c.JSON(http.StatusOK, roadmapResponsePayload{
		UserID:    document.UserID,
		UserName:  document.UserName,
		Roadmap:   json.RawMessage(document.RoadmapJSON),
		CreatedAt: document.CreatedAt,
		UpdatedAt: document.UpdatedAt,
	})
}

type updateTaskPayload struct {
	Name      string `json:"name"`
	Date      string `json:"date"`
	TaskID    string `json:"task_id"`
	Completed bool   `json:"completed"`
}

func (h *httpHandler) handleUpdateTask(c *gin.Context) {
	var request updateTaskPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if users.NormalizeName(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name_required"})
		return
	}
	if request.Date == "" || request.TaskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_and_task_id_required"})
		return
	}

	matched, err := h.roadmap.UpdateTaskCompletion(c.Request.Context(), request.Name, request.Date, request.TaskID, request.Completed)
	if err != nil {
		h.logger.Error("task update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": matched})
}

func (h *httpHandler) handleStatistics(c *gin.Context) {
	stats, err := h.roadmap.Statistics(c.Request.Context(), c.Param("name"))
	if err != nil && !errors.Is(err, users.ErrEmptyName) {
		h.logger.Error("statistics failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "statistics_failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) respondGatewayError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, llm.ErrUpstreamUnavailable):
		h.logger.Error("completion upstream unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, llm.ErrMalformedModelOutput):
		h.logger.Error("completion reply malformed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("completion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "completion_failed"})
	}
}
