package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// MessageService is the delivery pipeline as seen by the REST layer.
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID string, payload models.Payload) (models.Message, error)
	Conversation(ctx context.Context, viewerID, otherID string) ([]models.Message, error)
	AckSeen(ctx context.Context, viewerID, messageID string) error
	Delete(ctx context.Context, requesterID, messageID string) (models.Message, error)
}

type UnseenCounter interface {
	Counts(ctx context.Context, viewerID string) (map[string]int, error)
}

type OnlineLister interface {
	OnlineSet() []string
}

// ConversationHandler serves the one-to-one messaging endpoints.
type ConversationHandler struct {
	service      MessageService
	participants repositories.ParticipantRepository
	unseen       UnseenCounter
	online       OnlineLister
	log          *zap.Logger
}

func NewConversationHandler(service MessageService, participants repositories.ParticipantRepository, unseen UnseenCounter, online OnlineLister, log *zap.Logger) *ConversationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationHandler{
		service:      service,
		participants: participants,
		unseen:       unseen,
		online:       online,
		log:          log,
	}
}

// Register mounts the routes on an authenticated group.
func (h *ConversationHandler) Register(rg gin.IRoutes) {
	rg.GET("/conversations/participants", h.ListParticipants)
	rg.GET("/conversations/:participant_id", h.GetConversation)
	rg.POST("/conversations/:participant_id/messages", h.PostMessage)
	rg.PUT("/messages/:message_id/seen", h.AckSeen)
	rg.DELETE("/messages/:message_id", h.DeleteMessage)
	rg.GET("/presence", h.Presence)
}

// ListParticipants returns everyone except the caller with unseen counts and presence.
func (h *ConversationHandler) ListParticipants(c *gin.Context) {
	userID := userIDFromContext(c)
	ctx := c.Request.Context()

	others, err := h.participants.ListOthers(ctx, userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	counts, err := h.unseen.Counts(ctx, userID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	online := h.online.OnlineSet()
	onlineSet := make(map[string]struct{}, len(online))
	for _, id := range online {
		onlineSet[id] = struct{}{}
	}

	summaries := make([]models.ParticipantSummary, 0, len(others))
	for _, p := range others {
		_, isOnline := onlineSet[p.ID]
		summaries = append(summaries, models.ParticipantSummary{
			Participant: p,
			Online:      isOnline,
			Unseen:      counts[p.ID],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"participants": summaries,
		"unseen":       counts,
		"online":       online,
	})
}

// GetConversation returns the history with a participant and marks it seen.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	msgs, err := h.service.Conversation(c.Request.Context(), userIDFromContext(c), c.Param("participant_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *ConversationHandler) PostMessage(c *gin.Context) {
	var req models.Payload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	msg, err := h.service.Send(c.Request.Context(), userIDFromContext(c), c.Param("participant_id"), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) AckSeen(c *gin.Context) {
	if err := h.service.AckSeen(c.Request.Context(), userIDFromContext(c), c.Param("message_id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) DeleteMessage(c *gin.Context) {
	if _, err := h.service.Delete(c.Request.Context(), userIDFromContext(c), c.Param("message_id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) Presence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.online.OnlineSet()})
}
