package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Role of one turn in the transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Avatar references shown next to a turn in the chat view.
const (
	AvatarPlayer      = "images/player.jpg"
	AvatarGameMaster  = "images/gamemaster.jpg"
	AvatarIllustrated = "images/gamemaster_scene.jpg"
)

// Turn is one exchange unit: a player utterance or a Game Master reply.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Avatar  string `json:"avatar,omitempty"`
}

var (
	// ErrOutOfOrder is returned when an append would break the strict
	// user/assistant alternation of the transcript.
	ErrOutOfOrder = errors.New("transcript: turn breaks user/assistant alternation")

	// ErrMissingCredentials is returned when the chat backend has no API key
	// configured. Fatal to bootstrap, never retried.
	ErrMissingCredentials = errors.New("chat backend credentials are not configured")
)

// Transcript is the append-only ordered record of all turns. In a healthy
// session turns strictly alternate starting with the user; entries are never
// edited or reordered.
type Transcript struct {
	turns []Turn
}

func NewTranscript() *Transcript { return &Transcript{} }

// Append adds one turn. An assistant turn must answer the user turn right
// before it. A user turn may follow another user turn: a backend failure
// leaves the optimistic user turn behind as a pending-reply marker, and the
// next submission is still accepted.
func (t *Transcript) Append(turn Turn) error {
	if turn.Role == RoleAssistant {
		n := len(t.turns)
		if n == 0 || t.turns[n-1].Role != RoleUser {
			return fmt.Errorf("%w: assistant turn without a preceding user turn at position %d", ErrOutOfOrder, n)
		}
	}
	t.turns = append(t.turns, turn)
	return nil
}

// Turns returns a copy of the recorded turns in insertion order.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int { return len(t.turns) }

// ChatSession is a live conversation handle on the chat backend. The backend
// keeps the cumulative history; Send appends one user message and returns the
// assistant reply.
type ChatSession interface {
	Send(ctx context.Context, message string) (string, error)
}

// ChatBackend creates chat sessions seeded with the immutable context.
type ChatBackend interface {
	// Bootstrap starts a conversation whose first user-role message is the
	// seed context: the ingested document blobs followed by the initial prompt.
	Bootstrap(ctx context.Context, systemInstruction string, seed []string) (ChatSession, error)
}

// Session is the live conversational context for one process run: the chat
// handle on the backend plus the transcript grown turn by turn. It is owned
// by the hosting process and dies with it; only the transcript is persisted.
type Session struct {
	ID         string
	Chat       ChatSession
	Transcript *Transcript
}

// Bootstrapper builds the initial conversation out of the ingested context
// documents and the initial scenario prompt.
type Bootstrapper struct {
	backend ChatBackend
	logger  *zap.SugaredLogger
}

func NewBootstrapper(backend ChatBackend, logger *zap.SugaredLogger) *Bootstrapper {
	return &Bootstrapper{backend: backend, logger: logger}
}

// Bootstrap starts a new session. The seed context submitted as the first
// user message is [blob_1 … blob_k, initialPrompt]; empty blobs are dropped.
// Calling Bootstrap again simply produces a replacement session.
func (b *Bootstrapper) Bootstrap(ctx context.Context, systemInstruction, initialPrompt string, blobs []string) (*Session, error) {
	if strings.TrimSpace(initialPrompt) == "" {
		return nil, errors.New("bootstrap: empty initial prompt")
	}

	seed := make([]string, 0, len(blobs)+1)
	for _, blob := range blobs {
		if blob != "" {
			seed = append(seed, blob)
		}
	}
	seed = append(seed, initialPrompt)

	b.logger.Infow("Bootstrapping session", "seedParts", len(seed))
	chat, err := b.backend.Bootstrap(ctx, systemInstruction, seed)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &Session{
		ID:         uuid.NewString(),
		Chat:       chat,
		Transcript: NewTranscript(),
	}, nil
}
