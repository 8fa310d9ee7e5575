package game

// ErrorKind classifies a GameError for the transport layer
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindForbidden
	KindNotFound
	KindConflict
)

// Custom errors
var (
	ErrNoLobby            = &GameError{KindValidation, "no lobby selected"}
	ErrUnknownLobby       = &GameError{KindNotFound, "unknown lobby"}
	ErrLobbyNotFound      = &GameError{KindNotFound, "no active game in this lobby"}
	ErrNotHost            = &GameError{KindForbidden, "only the host can do that"}
	ErrNotEnoughPlayers   = &GameError{KindValidation, "need at least 4 players to start"}
	ErrGameAlreadyStarted = &GameError{KindValidation, "game already started"}
	ErrPlayerNotEligible  = &GameError{KindForbidden, "player is not in an active game or is dead"}
	ErrPlayerNotFound     = &GameError{KindNotFound, "player not found"}
	ErrWrongPhase         = &GameError{KindValidation, "that action is not allowed in this phase"}
	ErrActionNotAllowed   = &GameError{KindValidation, "that action does not match your role"}
	ErrInvalidTarget      = &GameError{KindValidation, "target must be an alive player"}
	ErrCannotKickSelf     = &GameError{KindValidation, "the host cannot kick themselves"}
	ErrMissingName        = &GameError{KindValidation, "display name is required"}
	ErrConflict           = &GameError{KindConflict, "the game changed while you acted, try again"}
)

// GameError is a user-facing failure with a stable message
type GameError struct {
	Kind    ErrorKind
	message string
}

func (e *GameError) Error() string {
	return e.message
}

func invalidSettings(msg string) *GameError {
	return &GameError{KindValidation, "invalid settings: " + msg}
}

// ErrorValidation builds a validation error for malformed client input.
func ErrorValidation(msg string) *GameError {
	return &GameError{KindValidation, msg}
}
