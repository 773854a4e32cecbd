package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ledionnezirii/germanmaster-sub002/handlers"
	"github.com/ledionnezirii/germanmaster-sub002/middleware"
	"github.com/ledionnezirii/germanmaster-sub002/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	roomHandler *handlers.RoomHandler,
	hub *services.Hub,
	registry *services.Registry,
	jwtSecret string,
	logger zerolog.Logger,
) {
	log := logger.With().Str("component", "routes").Logger()

	api := router.Group("/api")
	{
		// Lobby routes (public)
		rooms := api.Group("/rooms")
		{
			rooms.GET("", roomHandler.ListRooms)
			rooms.GET("/:code", roomHandler.GetRoomByCode)
		}

		// Protected room management
		protected := api.Group("/rooms")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			protected.POST("", roomHandler.CreateRoom)
			protected.DELETE("/:id", roomHandler.DeleteRoom)
		}
	}

	// WebSocket endpoint: joins (or rejoins) the room, then all game
	// traffic flows over the socket.
	router.GET("/ws/:code", func(c *gin.Context) {
		code := c.Param("code")

		identity, err := middleware.ParseToken(jwtSecret, c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		room, err := registry.FindByCode(code)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}

		// Admit (or re-attach) before upgrading so a full room costs the
		// caller one plain HTTP round trip, not a socket.
		if err := room.Join(identity.UserID, identity.DisplayName); err != nil {
			if errors.Is(err, services.ErrRoomNotJoinable) {
				c.JSON(http.StatusConflict, gin.H{"error": "Room not joinable"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join room"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("code", code).Str("user_id", identity.UserID).Msg("websocket upgrade failed")
			room.Disconnect(identity.UserID)
			return
		}

		hub.RegisterClient(conn, room, identity.UserID, identity.DisplayName)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "open_rooms": registry.Count()})
	})
}
