package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mafia-game/backend/internal/clock"
	"github.com/mafia-game/backend/internal/models"
	"github.com/mafia-game/backend/internal/storage"
)

// maxSystemAttempts bounds retries of advance and eviction after a storage
// version conflict.
const maxSystemAttempts = 3

// deadlineRetryDelay spaces out deadline advances that failed to commit.
const deadlineRetryDelay = time.Second

// errUnchanged tells transact that a mutation found nothing to do.
var errUnchanged = errors.New("unchanged")

// ErrLobbyClosed is returned for intents sent after shutdown began.
var ErrLobbyClosed = &GameError{KindConflict, "server is shutting down"}

// Store persists one game aggregate per lobby with versioned writes.
type Store interface {
	Load(ctx context.Context, lobbyID string) (*models.Game, error)
	Save(ctx context.Context, g *models.Game, expectedVersion int64) error
	Delete(ctx context.Context, lobbyID string, expectedVersion int64) error
	List(ctx context.Context) ([]*models.Game, error)
}

// mutation computes the next aggregate from a private copy of the current
// one (nil when the lobby has no record). Returning a nil game deletes the
// record.
type mutation func(g *models.Game, now time.Time) (*models.Game, error)

type commandKind int

const (
	cmdMutate commandKind = iota
	cmdSubscribe
	cmdUnsubscribe
)

type lobbyCommand struct {
	kind   commandKind
	ctx    context.Context
	name   string
	system bool
	kick   bool // evaluate the phase after a successful commit
	apply  mutation
	sub    *subscriber
	resp   chan error
}

type subscriber struct {
	viewerID string
	ch       chan *models.GameView
}

// phaseKey identifies what the deadline timer was armed for.
type phaseKey struct {
	round    int
	phase    models.GamePhase
	deadline int64
}

// Lobby owns one game aggregate. Every mutation runs on its loop goroutine,
// one at a time, so the aggregate has a single writer.
type Lobby struct {
	id     string
	store  Store
	clock  clock.Source
	tracer trace.Tracer

	onCommit func(lobbyID string, prev, next *models.Game)

	game        *models.Game // owned by the loop
	snapshot    atomic.Pointer[models.Game]
	subscribers map[*subscriber]struct{}

	timer  *time.Timer
	timerC <-chan time.Time
	armed  phaseKey

	cmdCh     chan lobbyCommand
	kickCh    chan struct{}
	quitCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

func newLobby(id string, initial *models.Game, store Store, src clock.Source, tracer trace.Tracer,
	onCommit func(string, *models.Game, *models.Game)) *Lobby {
	l := &Lobby{
		id:          id,
		store:       store,
		clock:       src,
		tracer:      tracer,
		onCommit:    onCommit,
		game:        initial,
		subscribers: make(map[*subscriber]struct{}),
		cmdCh:       make(chan lobbyCommand),
		kickCh:      make(chan struct{}, 1),
		quitCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	l.snapshot.Store(initial)
	go l.loop()
	return l
}

// ID returns the lobby id.
func (l *Lobby) ID() string {
	return l.id
}

// Snapshot returns the last committed aggregate. It must not be modified.
func (l *Lobby) Snapshot() *models.Game {
	return l.snapshot.Load()
}

func (l *Lobby) loop() {
	defer close(l.doneCh)
	l.rearm()
	for {
		select {
		case cmd := <-l.cmdCh:
			l.handleCommand(cmd)
		case <-l.timerC:
			l.timerC = nil
			if err := l.advance(context.Background(), "deadline"); err != nil {
				// keep the armed key so rearm leaves the retry timer alone
				l.retryDeadline()
			} else {
				l.armed = phaseKey{}
			}
		case <-l.kickCh:
			l.advance(context.Background(), "kick")
		case <-l.quitCh:
			l.stopTimer()
			for s := range l.subscribers {
				close(s.ch)
			}
			l.subscribers = nil
			return
		}
		l.rearm()
	}
}

func (l *Lobby) handleCommand(cmd lobbyCommand) {
	switch cmd.kind {
	case cmdMutate:
		err := l.transact(cmd.ctx, cmd.name, cmd.system, cmd.apply)
		if err == nil && cmd.kick {
			l.triggerAdvance()
		}
		cmd.resp <- err
	case cmdSubscribe:
		l.subscribers[cmd.sub] = struct{}{}
		offer(cmd.sub, l.viewFor(cmd.sub.viewerID))
		cmd.resp <- nil
	case cmdUnsubscribe:
		if _, ok := l.subscribers[cmd.sub]; ok {
			delete(l.subscribers, cmd.sub)
			close(cmd.sub.ch)
		}
		cmd.resp <- nil
	}
}

// send hands cmd to the loop and waits for its result.
func (l *Lobby) send(ctx context.Context, cmd lobbyCommand) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.ctx = ctx
	cmd.resp = make(chan error, 1)
	select {
	case l.cmdCh <- cmd:
	case <-l.doneCh:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.resp
}

// mutate runs a user intent. Conflicts surface as ErrConflict.
func (l *Lobby) mutate(ctx context.Context, name string, kick bool, apply mutation) error {
	return l.send(ctx, lobbyCommand{kind: cmdMutate, name: name, kick: kick, apply: apply})
}

// mutateSystem runs a server-initiated change, retrying on conflict.
func (l *Lobby) mutateSystem(ctx context.Context, name string, kick bool, apply mutation) error {
	return l.send(ctx, lobbyCommand{kind: cmdMutate, name: name, system: true, kick: kick, apply: apply})
}

// Advance evaluates the phase trigger and performs at most one transition.
func (l *Lobby) Advance(ctx context.Context) error {
	return l.mutateSystem(ctx, "advance", false, advanceMutation)
}

// triggerAdvance schedules a phase evaluation on the loop. Pending
// requests coalesce.
func (l *Lobby) triggerAdvance() {
	select {
	case l.kickCh <- struct{}{}:
	default:
	}
}

func (l *Lobby) advance(ctx context.Context, trigger string) error {
	err := l.transact(ctx, "advance", true, advanceMutation)
	if err != nil {
		log.Warn().Err(err).Str("lobby", l.id).Str("trigger", trigger).Msg("phase advance failed")
	}
	return err
}

func advanceMutation(g *models.Game, now time.Time) (*models.Game, error) {
	if g == nil || !processPhase(g, now) {
		return nil, errUnchanged
	}
	return g, nil
}

// transact applies one mutation against the current aggregate and commits
// it with a version check. On a storage conflict the aggregate is reloaded;
// system commands are retried, user commands get ErrConflict.
func (l *Lobby) transact(ctx context.Context, name string, system bool, apply mutation) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := l.tracer.Start(ctx, "lobby."+name, trace.WithAttributes(
		attribute.String("lobby.id", l.id),
		attribute.Bool("lobby.system", system),
	))
	defer span.End()

	attempts := 1
	if system {
		attempts = maxSystemAttempts
	}
	for attempt := 1; ; attempt++ {
		prev := l.game
		next, err := apply(prev.Clone(), l.clock.Now())
		if errors.Is(err, errUnchanged) || (err == nil && prev == nil && next == nil) {
			return nil
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		err = l.commit(ctx, prev, next)
		if err == nil {
			if next != nil {
				span.SetAttributes(attribute.Int64("game.version", next.Version))
			}
			return nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit failed")
			log.Error().Err(err).Str("lobby", l.id).Str("op", name).Msg("commit failed")
			return fmt.Errorf("commit %s: %w", name, err)
		}

		log.Warn().Str("lobby", l.id).Str("op", name).Int("attempt", attempt).Msg("version conflict, reloading")
		if rerr := l.reload(ctx); rerr != nil {
			span.RecordError(rerr)
			return fmt.Errorf("reload lobby %s: %w", l.id, rerr)
		}
		if attempt >= attempts {
			span.SetStatus(codes.Error, "conflict")
			return ErrConflict
		}
	}
}

func (l *Lobby) commit(ctx context.Context, prev, next *models.Game) error {
	var expected int64
	if prev != nil {
		expected = prev.Version
	}

	if next == nil {
		if err := l.store.Delete(ctx, l.id, expected); err != nil {
			return err
		}
	} else {
		next.LobbyID = l.id
		next.Version = expected + 1
		if err := l.store.Save(ctx, next, expected); err != nil {
			return err
		}
	}
	l.install(prev, next)
	return nil
}

func (l *Lobby) reload(ctx context.Context) error {
	g, err := l.store.Load(ctx, l.id)
	if errors.Is(err, storage.ErrNotFound) {
		g, err = nil, nil
	}
	if err != nil {
		return err
	}
	l.install(l.game, g)
	return nil
}

func (l *Lobby) install(prev, next *models.Game) {
	l.game = next
	l.snapshot.Store(next)
	logTransition(l.id, prev, next)
	if l.onCommit != nil {
		l.onCommit(l.id, prev, next)
	}
	for s := range l.subscribers {
		offer(s, l.viewFor(s.viewerID))
	}
}

func logTransition(lobbyID string, prev, next *models.Game) {
	switch {
	case next == nil && prev != nil:
		log.Info().Str("lobby", lobbyID).Msg("lobby deleted")
	case next == nil:
	case prev == nil:
		log.Info().Str("lobby", lobbyID).Msg("lobby created")
	case prev.Status != next.Status || prev.Phase != next.Phase || prev.Round != next.Round:
		log.Info().
			Str("lobby", lobbyID).
			Str("status", string(next.Status)).
			Str("phase", string(next.Phase)).
			Int("round", next.Round).
			Str("winner", string(next.Winner)).
			Msg("phase changed")
	}
}

func (l *Lobby) viewFor(viewerID string) *models.GameView {
	if l.game == nil {
		return &models.GameView{
			LobbyID:   l.id,
			ViewerID:  viewerID,
			Status:    models.StatusEmpty,
			Phase:     models.PhaseNone,
			Players:   []models.PlayerView{},
			Responded: []string{},
		}
	}
	return models.NewGameView(l.game, viewerID)
}

// offer delivers v, replacing a snapshot the reader has not consumed yet.
func offer(s *subscriber, v *models.GameView) {
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
	default:
	}
}

// rearm points the deadline timer at the active phase. It is a no-op while
// the phase, round and deadline are unchanged.
func (l *Lobby) rearm() {
	var key phaseKey
	if g := l.game; g != nil && g.Status == models.StatusPlaying && !g.RoundDeadline.IsZero() {
		key = phaseKey{round: g.Round, phase: g.Phase, deadline: g.RoundDeadline.UnixNano()}
	}
	if key == l.armed && (key == phaseKey{} || l.timerC != nil) {
		return
	}

	l.stopTimer()
	l.armed = key
	if key == (phaseKey{}) {
		return
	}
	d := l.game.RoundDeadline.Sub(l.clock.Now())
	if d < 0 {
		d = 0
	}
	l.timer = time.NewTimer(d)
	l.timerC = l.timer.C
}

// retryDeadline re-fires the deadline after a pause instead of at once,
// so a failing store is not hammered.
func (l *Lobby) retryDeadline() {
	l.stopTimer()
	l.timer = time.NewTimer(deadlineRetryDelay)
	l.timerC = l.timer.C
}

func (l *Lobby) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = nil
	l.timerC = nil
}

// Subscribe registers a per-viewer snapshot stream. The channel holds at
// most one pending snapshot and is closed by the returned cancel func or
// when the lobby shuts down.
func (l *Lobby) Subscribe(viewerID string) (<-chan *models.GameView, func(), error) {
	s := &subscriber{viewerID: viewerID, ch: make(chan *models.GameView, 1)}
	if err := l.send(context.Background(), lobbyCommand{kind: cmdSubscribe, sub: s}); err != nil {
		return nil, nil, err
	}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = l.send(context.Background(), lobbyCommand{kind: cmdUnsubscribe, sub: s})
		})
	}
	return s.ch, cancel, nil
}

// Close stops the loop and waits for it to exit.
func (l *Lobby) Close() {
	l.closeOnce.Do(func() {
		close(l.quitCh)
	})
	<-l.doneCh
}
