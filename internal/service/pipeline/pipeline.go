package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"adventure/internal/service/illustration"
	"adventure/internal/service/session"
)

// State of the turn pipeline. Transitions are strictly sequential per turn:
// AwaitingInput → Sending → Translating → (ImagePending|Skipped) → Persisted
// → AwaitingInput.
type State int

const (
	StateAwaitingInput State = iota
	StateSending
	StateTranslating
	StateImagePending
	StateSkipped
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateSending:
		return "sending"
	case StateTranslating:
		return "translating"
	case StateImagePending:
		return "image_pending"
	case StateSkipped:
		return "skipped"
	case StatePersisted:
		return "persisted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrEmptyUtterance rejects blank submissions before anything is recorded.
	ErrEmptyUtterance = errors.New("pipeline: empty utterance")

	// ErrTurnInFlight is returned while a previous turn is still processing.
	// At most one turn is ever in flight.
	ErrTurnInFlight = errors.New("pipeline: a turn is already in flight")
)

// Translator converts the reply into the target language. The translation is
// transient: it only feeds the illustration prompt, never the transcript.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Illustrator renders a scene description to the fixed artifact path.
type Illustrator interface {
	Render(ctx context.Context, scene string) (string, error)
}

// Persister writes the full transcript snapshot after each completed turn.
type Persister interface {
	Persist(turns []session.Turn) error
}

// Timeouts bound each external backend call. Zero means no deadline.
type Timeouts struct {
	Chat      time.Duration
	Translate time.Duration
	Image     time.Duration
}

// Result of one completed turn.
type Result struct {
	Reply            string
	TurnNumber       int
	Illustrated      bool
	IllustrationPath string
}

// Pipeline drives one player utterance to a persisted, possibly illustrated,
// Game Master reply. All steps that are not essential to the textual reply
// (translation, illustration, persistence) degrade with a log instead of
// failing the turn; a chat backend failure aborts the turn.
type Pipeline struct {
	sess       *session.Session
	translator Translator
	policy     illustration.Policy
	artist     Illustrator
	persister  Persister
	targetLang string
	timeouts   Timeouts
	logger     *zap.SugaredLogger

	busy atomic.Bool

	mu             sync.Mutex
	state          State
	completedTurns int
}

func New(sess *session.Session, translator Translator, policy illustration.Policy, artist Illustrator, persister Persister, targetLang string, timeouts Timeouts, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		sess:       sess,
		translator: translator,
		policy:     policy,
		artist:     artist,
		persister:  persister,
		targetLang: targetLang,
		timeouts:   timeouts,
		logger:     logger,
		state:      StateAwaitingInput,
	}
}

// State reports the current pipeline state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CompletedTurns reports how many assistant turns have completed.
func (p *Pipeline) CompletedTurns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completedTurns
}

// Transcript returns a copy of the recorded turns.
func (p *Pipeline) Transcript() []session.Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess.Transcript.Turns()
}

// Submit runs one full turn. There is no cancellation once a turn starts:
// it runs to completion or failure. A second Submit while one is in flight
// returns ErrTurnInFlight.
func (p *Pipeline) Submit(ctx context.Context, utterance string) (*Result, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, ErrEmptyUtterance
	}
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer p.busy.Store(false)

	start := time.Now()

	// The user turn is recorded before the backend answers. On a backend
	// failure it stays in the transcript as a pending-reply marker; it is
	// never rolled back.
	if err := p.append(session.Turn{Role: session.RoleUser, Content: utterance, Avatar: session.AvatarPlayer}); err != nil {
		return nil, err
	}

	p.setState(StateSending)
	reply, err := p.send(ctx, utterance)
	if err != nil {
		p.setState(StateAwaitingInput)
		return nil, fmt.Errorf("chat backend: %w", err)
	}

	p.setState(StateTranslating)
	scene := p.translate(ctx, reply)

	turnNumber := p.bumpCompletedTurns()
	result := &Result{Reply: reply, TurnNumber: turnNumber}
	avatar := session.AvatarGameMaster

	if p.policy.Due(turnNumber) {
		p.setState(StateImagePending)
		path, rerr := p.render(ctx, scene)
		if rerr != nil {
			// The textual reply still stands.
			p.logger.Errorw("Illustration failed", "turn", turnNumber, "error", rerr)
		} else {
			result.Illustrated = true
			result.IllustrationPath = path
			avatar = session.AvatarIllustrated
		}
	} else {
		p.setState(StateSkipped)
	}

	if err := p.append(session.Turn{Role: session.RoleAssistant, Content: reply, Avatar: avatar}); err != nil {
		return nil, err
	}
	if perr := p.persister.Persist(p.Transcript()); perr != nil {
		p.logger.Errorw("Failed to persist transcript, session continues in memory", "error", perr)
	}
	p.setState(StatePersisted)

	p.logger.Infow("Turn done", "turn", turnNumber, "illustrated", result.Illustrated, "duration", time.Since(start).String())
	p.setState(StateAwaitingInput)
	return result, nil
}

func (p *Pipeline) send(ctx context.Context, utterance string) (string, error) {
	if p.timeouts.Chat > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeouts.Chat)
		defer cancel()
	}
	start := time.Now()
	p.logger.Infow("Dispatching to chat backend")
	reply, err := p.sess.Chat.Send(ctx, utterance)
	if err != nil {
		p.logger.Errorw("Chat backend error", "duration", time.Since(start).String(), "error", err)
		return "", err
	}
	p.logger.Infow("Chat backend replied", "duration", time.Since(start).String())
	return reply, nil
}

// translate returns the reply in the target language, or the untranslated
// reply when translation fails. The stored transcript is unaffected either way.
func (p *Pipeline) translate(ctx context.Context, reply string) string {
	if p.timeouts.Translate > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeouts.Translate)
		defer cancel()
	}
	translated, err := p.translator.Translate(ctx, reply, p.targetLang)
	if err != nil {
		p.logger.Warnw("Translation failed, falling back to the untranslated reply", "error", err)
		return reply
	}
	return translated
}

func (p *Pipeline) render(ctx context.Context, scene string) (string, error) {
	if p.timeouts.Image > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeouts.Image)
		defer cancel()
	}
	return p.artist.Render(ctx, scene)
}

func (p *Pipeline) append(turn session.Turn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sess.Transcript.Append(turn)
}

func (p *Pipeline) bumpCompletedTurns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completedTurns++
	return p.completedTurns
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
