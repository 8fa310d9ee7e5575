package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mafia-game/backend/internal/auth"
	"github.com/mafia-game/backend/internal/game"
	"github.com/mafia-game/backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	intentTimeout  = 5 * time.Second
)

// Client is one websocket connection bound to a player's session.
type Client struct {
	ID       string
	PlayerID string
	LobbyID  string
	Conn     *websocket.Conn
	Send     chan []byte
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type actionPayload struct {
	Kind     models.ActionKind `json:"kind"`
	TargetID *string           `json:"targetId"`
}

type votePayload struct {
	TargetID *string `json:"targetId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
}

// HandleWebSocket streams the caller's view of their lobby and accepts
// intents over the same connection. The session token is passed as the
// token query parameter.
func HandleWebSocket(gm *game.GameManager, tokens *auth.Issuer, allowedOrigin string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigin)
	return func(c *gin.Context) {
		s, err := tokens.Parse(c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "a valid session token is required"})
			return
		}

		views, cancel, err := gm.Subscribe(s.LobbyID, s.PlayerID)
		if err != nil {
			writeError(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			cancel()
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			PlayerID: s.PlayerID,
			LobbyID:  s.LobbyID,
			Conn:     conn,
			Send:     make(chan []byte, 16),
		}
		log.Info().
			Str("client", client.ID).
			Str("player", client.PlayerID).
			Str("lobby", client.LobbyID).
			Msg("websocket connected")

		// Touch presence on connect so a reconnecting player is not reaped.
		_ = gm.SendHeartbeat(client.PlayerID)

		go client.WritePump(views)
		go client.ReadPump(gm, cancel)
	}
}

// ReadPump handles inbound intents until the connection drops. It cancels
// the view subscription on exit, which in turn stops WritePump.
func (c *Client) ReadPump(gm *game.GameManager, cancel func()) {
	defer func() {
		cancel()
		c.Conn.Close()
		log.Info().Str("client", c.ID).Str("player", c.PlayerID).Msg("websocket disconnected")
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.ID).Msg("websocket read failed")
			}
			return
		}
		if err := c.handleMessage(gm, message); err != nil {
			c.sendError(err)
		}
	}
}

func (c *Client) handleMessage(gm *game.GameManager, raw []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return game.ErrorValidation("malformed message")
	}

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	switch msg.Type {
	case models.EventHeartbeat:
		return gm.SendHeartbeat(c.PlayerID)

	case models.EventSubmitAction:
		var p actionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return game.ErrorValidation("malformed action payload")
		}
		return gm.SubmitAction(ctx, c.PlayerID, p.Kind, p.TargetID, c.LobbyID)

	case models.EventSubmitVote:
		var p votePayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return game.ErrorValidation("malformed vote payload")
			}
		}
		return gm.SubmitVote(ctx, c.PlayerID, p.TargetID, c.LobbyID)

	case models.EventAdvance:
		return gm.Advance(ctx, c.LobbyID)

	default:
		return game.ErrorValidation("unknown message type " + msg.Type)
	}
}

// WritePump forwards view snapshots and queued replies to the connection.
func (c *Client) WritePump(views <-chan *models.GameView) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case view, ok := <-views:
			if !ok {
				_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(viewMessage(view)); err != nil {
				return
			}

		case data := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func viewMessage(view *models.GameView) models.WSMessage {
	if view.Status == models.StatusEmpty {
		return models.WSMessage{Type: models.EventLobbyDeleted, Payload: gin.H{"lobbyId": view.LobbyID}}
	}
	return models.WSMessage{Type: models.EventGameStateUpdate, Payload: view}
}

func (c *Client) write(msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("encode websocket message")
		return nil
	}
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// sendError queues an error event. It drops the event when the writer is
// not keeping up.
func (c *Client) sendError(err error) {
	data, mErr := json.Marshal(models.WSMessage{
		Type:    models.EventError,
		Payload: errorPayload{Message: errorMessage(err)},
	})
	if mErr != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("client", c.ID).Msg("dropping error event for slow client")
	}
}

func errorMessage(err error) string {
	var gerr *game.GameError
	if errors.As(err, &gerr) {
		return gerr.Error()
	}
	log.Error().Err(err).Msg("websocket intent failed")
	return "internal error"
}
