package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is one participant's websocket connection, bound to exactly one
// room. Inbound game messages are forwarded to the room actor; outbound
// events arrive through the buffered send channel.
type Client struct {
	hub    *Hub
	room   *Room
	socket *websocket.Conn

	roomID      string
	userID      string
	displayName string

	send      chan []byte
	closeOnce sync.Once

	log zerolog.Logger
}

// inboundMessage is what clients send: ready, submit_answer, leave, ping.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitAnswerPayload struct {
	QuestionIndex int   `json:"question_index"`
	OptionIndex   int   `json:"option_index"`
	TimeSpentMs   int64 `json:"time_spent_ms"`
}

// RegisterClient attaches a connection to a room and starts its pumps.
func (h *Hub) RegisterClient(conn *websocket.Conn, room *Room, userID, displayName string) *Client {
	client := &Client{
		hub:         h,
		room:        room,
		socket:      conn,
		roomID:      room.ID(),
		userID:      userID,
		displayName: displayName,
		send:        make(chan []byte, 256),
		log: h.log.With().Str("room_id", room.ID()).Str("user_id", userID).Logger(),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	// State sync for the fresh socket. Broadcasts emitted between the
	// pre-upgrade join and this registration never reached it; the
	// snapshot supersedes them all.
	room.Sync(userID)

	return client
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		// Slow consumer; kill the connection and let the read pump
		// report the disconnect.
		c.socket.Close()
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed client message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg inboundMessage) {
	switch msg.Type {
	case "ready":
		c.room.Ready(c.userID)

	case "submit_answer":
		var req submitAnswerPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError("malformed answer payload")
			return
		}
		if err := c.room.SubmitAnswer(c.userID, req.QuestionIndex, req.OptionIndex, req.TimeSpentMs); err != nil {
			// Private notice; the rest of the room never sees it.
			c.sendError(err.Error())
		}

	case "leave":
		c.room.Leave(c.userID)

	case "ping":
		if data, err := json.Marshal(Message{Type: "pong", Payload: "pong"}); err == nil {
			c.enqueue(data)
		}

	default:
		c.log.Debug().Str("type", msg.Type).Msg("unknown message type")
	}
}

func (c *Client) sendError(message string) {
	data, err := json.Marshal(Message{Type: EventRaceError, Payload: RaceErrorPayload{Message: message}})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
