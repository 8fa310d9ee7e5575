package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mafia-game/backend/internal/auth"
	"github.com/mafia-game/backend/internal/game"
	"github.com/mafia-game/backend/internal/models"
)

type JoinLobbyRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

type KickRequest struct {
	TargetID string `json:"targetId" binding:"required"`
}

type ActionRequest struct {
	Kind     models.ActionKind `json:"kind" binding:"required"`
	TargetID *string           `json:"targetId"`
}

type VoteRequest struct {
	TargetID *string `json:"targetId"`
}

// ListLobbies returns the lobby catalogue with live status
func ListLobbies(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"lobbies": gm.ListLobbies()})
	}
}

// GetLobby returns the game as the caller may see it. Without a session
// for this lobby the caller sees no roles.
func GetLobby(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		viewer := ""
		if s, ok := sessionFrom(c); ok && s.LobbyID == id {
			viewer = s.PlayerID
		}

		view, ok := gm.View(id, viewer)
		if !ok {
			writeError(c, game.ErrLobbyNotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"game": view})
	}
}

// JoinLobby adds the caller to a lobby and issues a session for it. A
// caller holding a session keeps their player id.
func JoinLobby(gm *game.GameManager, tokens *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req JoinLobbyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user := game.User{DisplayName: req.DisplayName}
		if s, ok := sessionFrom(c); ok {
			user.ID = s.PlayerID
		}

		lobbyID := c.Param("id")
		player, err := gm.JoinLobby(c.Request.Context(), lobbyID, user)
		if err != nil {
			writeError(c, err)
			return
		}
		token, err := tokens.Issue(player.ID, lobbyID)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"player": player,
			"token":  token,
		})
	}
}

// LeaveLobby removes the caller from the lobby
func LeaveLobby(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, _ := sessionFrom(c)
		if err := gm.LeaveLobby(c.Request.Context(), s.PlayerID, s.LobbyID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// KickPlayer removes another player. Host only.
func KickPlayer(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req KickRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, _ := sessionFrom(c)
		if err := gm.KickPlayer(c.Request.Context(), s.PlayerID, req.TargetID, s.LobbyID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// UpdateSettings merges a partial settings update. Host only.
func UpdateSettings(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch models.SettingsPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, _ := sessionFrom(c)
		if err := gm.UpdateSettings(c.Request.Context(), s.PlayerID, patch, s.LobbyID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// StartGame deals roles and opens the first night. Host only.
func StartGame(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, _ := sessionFrom(c)
		res, err := gm.StartGame(c.Request.Context(), s.PlayerID, s.LobbyID)
		if err != nil {
			writeError(c, err)
			return
		}

		body := gin.H{"start": res}
		if res.Clamped {
			body["warning"] = "mafia count was reduced to a third of the players"
		}
		c.JSON(http.StatusOK, body)
	}
}

// SubmitAction records the caller's night action
func SubmitAction(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, _ := sessionFrom(c)
		if err := gm.SubmitAction(c.Request.Context(), s.PlayerID, req.Kind, req.TargetID, s.LobbyID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// SubmitVote records the caller's day vote
func SubmitVote(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, _ := sessionFrom(c)
		if err := gm.SubmitVote(c.Request.Context(), s.PlayerID, req.TargetID, s.LobbyID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// ResetGame returns the lobby to its waiting state. Host only.
func ResetGame(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, _ := sessionFrom(c)
		if err := gm.ResetGame(c.Request.Context(), s.PlayerID, s.LobbyID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Advance asks the lobby to end a phase whose deadline has passed
func Advance(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, _ := sessionFrom(c)
		if err := gm.Advance(c.Request.Context(), s.LobbyID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// Heartbeat marks the caller as active
func Heartbeat(gm *game.GameManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, _ := sessionFrom(c)
		if err := gm.SendHeartbeat(s.PlayerID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
