package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ledionnezirii/germanmaster-sub002/models"
	"github.com/ledionnezirii/germanmaster-sub002/services"
)

type RoomHandler struct {
	registry *services.Registry
}

func NewRoomHandler(registry *services.Registry) *RoomHandler {
	return &RoomHandler{registry: registry}
}

type CreateRoomRequest struct {
	Level          string `json:"level"`
	MaxPlayers     int    `json:"max_players" binding:"required"`
	QuestionsCount int    `json:"questions_count" binding:"required"`
	GameMode       string `json:"game_mode"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.registry.CreateRoom(c.Request.Context(), models.RoomConfig{
		Level:          req.Level,
		MaxPlayers:     req.MaxPlayers,
		QuestionsCount: req.QuestionsCount,
		GameMode:       models.GameMode(req.GameMode),
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	c.JSON(http.StatusCreated, room.Summary())
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	level := c.Query("level")
	c.JSON(http.StatusOK, gin.H{"rooms": h.registry.ListOpen(level)})
}

func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room code required"})
		return
	}

	room, err := h.registry.FindByCode(code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	// Lobby view only. The in-progress question travels over the room
	// socket, never over an unauthenticated lookup.
	c.JSON(http.StatusOK, room.Summary())
}

func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room id required"})
		return
	}

	// Idempotent: deleting an unknown room is fine.
	h.registry.Remove(id)
	c.JSON(http.StatusOK, gin.H{"message": "Room removed"})
}
