package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrchat/internal/apperr"
	"qrchat/internal/logging"
	"qrchat/internal/metrics"
	"qrchat/internal/models"
	"qrchat/internal/service/chat"
)

// maxAudioBytes matches the transcription upload limit.
const maxAudioBytes = 25 << 20

type ChatService interface {
	Turn(ctx context.Context, req chat.Request) (*models.Message, *models.Message, error)
	History(ctx context.Context) ([]*models.Message, error)
}

type VoiceService interface {
	HandleVoiceQuery(ctx context.Context, audio []byte, filename string) ([]byte, error)
}

// Handler wires HTTP routes to the chat and voice services.
type Handler struct {
	chat    ChatService
	voice   VoiceService
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(chatService ChatService, voiceService VoiceService, m *metrics.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		chat:    chatService,
		voice:   voiceService,
		metrics: m,
		log:     log,
	}
}

// NewRouter builds the gin engine with recovery, request logging, CORS and
// the 405 fallback, and registers the handler's routes.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), logging.Middleware(h.log), cors())
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "Method not allowed"})
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	})
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := router.Group("/api")
	api.GET("/messages", h.listMessages)
	api.POST("/chat", h.postChat)
	api.POST("/ai-call", h.aiCall)
}

// cors allows any origin and answers preflight requests directly.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+logging.RequestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.chat.History(c.Request.Context())
	if err != nil {
		h.log.Error("fetch messages failed",
			zap.String("request_id", logging.RequestID(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) postChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Invalid request format",
			"errors": []chat.FieldError{{
				Field:   "message",
				Rule:    "json",
				Message: "Expected a JSON object with a string message",
			}},
		})
		return
	}

	userMessage, aiMessage, err := h.chat.Turn(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "Failed to process chat message")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userMessage": userMessage,
		"aiMessage":   aiMessage,
	})
}

func (h *Handler) aiCall(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioBytes+1<<20)
	file, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Audio file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "No audio file uploaded"})
		return
	}
	if file.Size > maxAudioBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Audio file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "open audio failed"})
		return
	}
	audio, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "read audio failed"})
		return
	}

	speech, err := h.voice.HandleVoiceQuery(c.Request.Context(), audio, file.Filename)
	if err != nil {
		h.writeError(c, err, "Failed to process voice query")
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", speech)
}

// writeError maps err onto the response: validation failures are 400 with
// field details, everything else is 500 with a message.
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	var reqErr *chat.RequestError
	if errors.As(err, &reqErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Invalid request format",
			"errors":  reqErr.Fields,
		})
		return
	}

	status := apperr.HTTPStatus(err)
	if status == http.StatusBadRequest {
		c.JSON(status, gin.H{"message": apperr.PublicMessage(err)})
		return
	}

	h.log.Error("request failed",
		zap.String("request_id", logging.RequestID(c)),
		zap.String("kind", string(apperr.KindOf(err))),
		zap.Error(err))
	message := fallback
	if apperr.KindOf(err) != apperr.KindUnknown {
		message = apperr.PublicMessage(err)
	}
	c.JSON(status, gin.H{"message": message})
}
