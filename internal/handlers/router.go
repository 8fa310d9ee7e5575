package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mafia-game/backend/internal/auth"
	"github.com/mafia-game/backend/internal/game"
)

// NewRouter wires every HTTP and websocket route.
func NewRouter(gm *game.GameManager, tokens *auth.Issuer, allowedOrigin string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORS(allowedOrigin))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/lobbies", ListLobbies(gm))
		api.GET("/lobbies/:id", OptionalSession(tokens), GetLobby(gm))
		api.POST("/lobbies/:id/join", OptionalSession(tokens), JoinLobby(gm, tokens))
		api.POST("/heartbeat", RequireSession(tokens), Heartbeat(gm))

		member := api.Group("/lobbies/:id", RequireSession(tokens), RequireLobbyMember())
		member.POST("/leave", LeaveLobby(gm))
		member.POST("/kick", KickPlayer(gm))
		member.POST("/settings", UpdateSettings(gm))
		member.POST("/start", StartGame(gm))
		member.POST("/actions", SubmitAction(gm))
		member.POST("/votes", SubmitVote(gm))
		member.POST("/reset", ResetGame(gm))
		member.POST("/advance", Advance(gm))
	}

	router.GET("/ws", HandleWebSocket(gm, tokens, allowedOrigin))
	return router
}
