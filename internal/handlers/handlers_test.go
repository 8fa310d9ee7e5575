package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mafia-game/backend/internal/auth"
	"github.com/mafia-game/backend/internal/clock"
	"github.com/mafia-game/backend/internal/game"
	"github.com/mafia-game/backend/internal/models"
)

type testServer struct {
	router *gin.Engine
	gm     *game.GameManager
	tokens *auth.Issuer
}

type joinResponse struct {
	Player models.Player `json:"player"`
	Token  string        `json:"token"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gm := game.NewGameManager(game.Options{
		Clock: clock.NewFake(time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)),
		Lobbies: []models.LobbyInfo{
			{ID: "lobby-1", Name: "Lobby 1"},
			{ID: "lobby-2", Name: "Lobby 2"},
		},
	})
	t.Cleanup(gm.Close)

	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return &testServer{router: NewRouter(gm, tokens, "*"), gm: gm, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) join(t *testing.T, lobbyID, name string) joinResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/lobbies/"+lobbyID+"/join", "", gin.H{"displayName": name})
	if w.Code != http.StatusOK {
		t.Fatalf("join %s: status %d body %s", name, w.Code, w.Body.String())
	}
	var resp joinResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode join: %v", err)
	}
	if resp.Token == "" || resp.Player.ID == "" {
		t.Fatalf("join %s: missing token or player id: %s", name, w.Body.String())
	}
	return resp
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodOptions, "/api/lobbies", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestJoinAndGetLobby(t *testing.T) {
	s := newTestServer(t)
	host := s.join(t, "lobby-1", "Alice")

	w := s.do(t, http.MethodGet, "/api/lobbies/lobby-1", host.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get lobby: status %d body %s", w.Code, w.Body.String())
	}
	var body struct {
		Game models.GameView `json:"game"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Game.HostID != host.Player.ID {
		t.Fatalf("host = %q, want %q", body.Game.HostID, host.Player.ID)
	}
	if body.Game.ViewerID != host.Player.ID {
		t.Fatalf("viewer = %q, want %q", body.Game.ViewerID, host.Player.ID)
	}
	if body.Game.Status != models.StatusLobby {
		t.Fatalf("status = %q", body.Game.Status)
	}

	if w := s.do(t, http.MethodGet, "/api/lobbies/lobby-2", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("empty lobby: status %d", w.Code)
	}
}

func TestJoinValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
	}{
		{"missing name", "/api/lobbies/lobby-1/join", gin.H{}, http.StatusBadRequest},
		{"blank name", "/api/lobbies/lobby-1/join", gin.H{"displayName": "   "}, http.StatusBadRequest},
		{"unknown lobby", "/api/lobbies/nowhere/join", gin.H{"displayName": "Bob"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestRejoinKeepsPlayerID(t *testing.T) {
	s := newTestServer(t)
	first := s.join(t, "lobby-1", "Alice")

	w := s.do(t, http.MethodPost, "/api/lobbies/lobby-2/join", first.Token, gin.H{"displayName": "Alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("rejoin: status %d body %s", w.Code, w.Body.String())
	}
	var resp joinResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Player.ID != first.Player.ID {
		t.Fatalf("player id = %q, want %q", resp.Player.ID, first.Player.ID)
	}
	if lobby, _ := s.gm.LobbyOf(first.Player.ID); lobby != "lobby-2" {
		t.Fatalf("player is in %q, want lobby-2", lobby)
	}
}

func TestMemberRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)
	host := s.join(t, "lobby-1", "Alice")

	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/start", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/start", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-2/start", host.Token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("other lobby: status %d", w.Code)
	}
}

func TestStartGameFlow(t *testing.T) {
	s := newTestServer(t)
	host := s.join(t, "lobby-1", "Alice")

	w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/start", host.Token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("start with one player: status %d", w.Code)
	}
	if got := errorBody(t, w); got != game.ErrNotEnoughPlayers.Error() {
		t.Fatalf("error = %q", got)
	}

	bob := s.join(t, "lobby-1", "Bob")
	s.join(t, "lobby-1", "Carol")
	s.join(t, "lobby-1", "Dave")

	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/start", bob.Token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-host start: status %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/api/lobbies/lobby-1/settings", host.Token, gin.H{"mafiaCount": 3})
	if w.Code != http.StatusNoContent {
		t.Fatalf("settings: status %d body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/lobbies/lobby-1/start", host.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", w.Code, w.Body.String())
	}
	var body struct {
		Start   game.StartResult `json:"start"`
		Warning string           `json:"warning"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Start.MafiaCount != 1 || !body.Start.Clamped || body.Warning == "" {
		t.Fatalf("start = %+v warning %q", body.Start, body.Warning)
	}

	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/start", host.Token, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("second start: status %d", w.Code)
	}

	// Votes are rejected at night.
	target := host.Player.ID
	w = s.do(t, http.MethodPost, "/api/lobbies/lobby-1/votes", bob.Token, gin.H{"targetId": target})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("night vote: status %d body %s", w.Code, w.Body.String())
	}
	if got := errorBody(t, w); got != game.ErrWrongPhase.Error() {
		t.Fatalf("error = %q", got)
	}

	w = s.do(t, http.MethodPost, "/api/lobbies/lobby-1/actions", bob.Token, gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("action without kind: status %d", w.Code)
	}
}

func TestSettingsValidation(t *testing.T) {
	s := newTestServer(t)
	host := s.join(t, "lobby-1", "Alice")

	w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/settings", host.Token, gin.H{"dayTimerMinutes": 0})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
}

func TestKickAndLeave(t *testing.T) {
	s := newTestServer(t)
	host := s.join(t, "lobby-1", "Alice")
	bob := s.join(t, "lobby-1", "Bob")

	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/kick", host.Token, gin.H{"targetId": "ghost"}); w.Code != http.StatusNotFound {
		t.Fatalf("kick unknown: status %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/kick", bob.Token, gin.H{"targetId": host.Player.ID}); w.Code != http.StatusForbidden {
		t.Fatalf("kick by non-host: status %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/kick", host.Token, gin.H{"targetId": bob.Player.ID}); w.Code != http.StatusNoContent {
		t.Fatalf("kick: status %d body %s", w.Code, w.Body.String())
	}
	if _, ok := s.gm.LobbyOf(bob.Player.ID); ok {
		t.Fatal("kicked player still indexed")
	}

	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/leave", host.Token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("leave: status %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/lobbies/lobby-1", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("lobby should be gone, status %d", w.Code)
	}
}

func TestHeartbeat(t *testing.T) {
	s := newTestServer(t)
	host := s.join(t, "lobby-1", "Alice")

	if w := s.do(t, http.MethodPost, "/api/heartbeat", host.Token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("heartbeat: status %d", w.Code)
	}

	// A token for a player who left no longer maps to a lobby.
	if w := s.do(t, http.MethodPost, "/api/lobbies/lobby-1/leave", host.Token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("leave: status %d", w.Code)
	}
	if w := s.do(t, http.MethodPost, "/api/heartbeat", host.Token, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("heartbeat after leave: status %d", w.Code)
	}
}

func TestListLobbies(t *testing.T) {
	s := newTestServer(t)
	s.join(t, "lobby-2", "Alice")

	w := s.do(t, http.MethodGet, "/api/lobbies", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Lobbies []models.LobbyStatus `json:"lobbies"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Lobbies) != 2 {
		t.Fatalf("lobbies = %+v", body.Lobbies)
	}
	if body.Lobbies[0].ID != "lobby-1" || body.Lobbies[1].ID != "lobby-2" {
		t.Fatalf("order = %+v", body.Lobbies)
	}
}
