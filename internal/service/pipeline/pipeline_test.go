package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adventure/internal/service/illustration"
	"adventure/internal/service/session"
)

type fakeChat struct {
	calls int
	err   error
	block chan struct{} // when set, Send waits until the channel is closed
}

func (f *fakeChat) Send(_ context.Context, message string) (string, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("reply to %q #%d", message, f.calls), nil
}

type fakeTranslator struct {
	err   error
	calls []string
}

func (f *fakeTranslator) Translate(_ context.Context, text, targetLang string) (string, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return "", f.err
	}
	return "[" + targetLang + "] " + text, nil
}

type fakeArtist struct {
	err    error
	scenes []string
}

func (f *fakeArtist) Render(_ context.Context, scene string) (string, error) {
	f.scenes = append(f.scenes, scene)
	if f.err != nil {
		return "", f.err
	}
	return "images/illustration.jpg", nil
}

type fakePersister struct {
	err       error
	snapshots [][]session.Turn
}

func (f *fakePersister) Persist(turns []session.Turn) error {
	f.snapshots = append(f.snapshots, turns)
	return f.err
}

type fixture struct {
	chat       *fakeChat
	translator *fakeTranslator
	artist     *fakeArtist
	persister  *fakePersister
	pipe       *Pipeline
}

func newFixture(cadence int) *fixture {
	f := &fixture{
		chat:       &fakeChat{},
		translator: &fakeTranslator{},
		artist:     &fakeArtist{},
		persister:  &fakePersister{},
	}
	sess := &session.Session{ID: "test", Chat: f.chat, Transcript: session.NewTranscript()}
	f.pipe = New(sess, f.translator, illustration.Policy{Cadence: cadence}, f.artist, f.persister, "en", Timeouts{}, zap.NewNop().Sugar())
	return f
}

func TestSubmitAppendsAlternatingTurns(t *testing.T) {
	f := newFixture(3)

	for i := 0; i < 3; i++ {
		_, err := f.pipe.Submit(context.Background(), fmt.Sprintf("move %d", i+1))
		require.NoError(t, err)
	}

	turns := f.pipe.Transcript()
	require.Len(t, turns, 6)
	for i, turn := range turns {
		want := session.RoleUser
		if i%2 == 1 {
			want = session.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
	assert.Equal(t, "move 1", turns[0].Content)
	assert.Equal(t, session.AvatarPlayer, turns[0].Avatar)
}

func TestIllustrationCadence(t *testing.T) {
	f := newFixture(3)

	var illustrated []bool
	for i := 0; i < 3; i++ {
		res, err := f.pipe.Submit(context.Background(), "go on")
		require.NoError(t, err)
		illustrated = append(illustrated, res.Illustrated)
	}

	assert.Equal(t, []bool{false, false, true}, illustrated)
	require.Len(t, f.artist.scenes, 1)
	// The illustration prompt is fed the translated reply.
	assert.Contains(t, f.artist.scenes[0], "[en] ")

	turns := f.pipe.Transcript()
	assert.Equal(t, session.AvatarGameMaster, turns[1].Avatar)
	assert.Equal(t, session.AvatarGameMaster, turns[3].Avatar)
	assert.Equal(t, session.AvatarIllustrated, turns[5].Avatar)
}

func TestTranslationFailureFallsBackToUntranslated(t *testing.T) {
	f := newFixture(1) // illustrate every turn
	f.translator.err = errors.New("translate down")

	res, err := f.pipe.Submit(context.Background(), "look around")
	require.NoError(t, err)
	assert.True(t, res.Illustrated)

	// The artist got the raw reply, and the stored turn is the raw reply too.
	require.Len(t, f.artist.scenes, 1)
	assert.Equal(t, res.Reply, f.artist.scenes[0])
	turns := f.pipe.Transcript()
	assert.Equal(t, res.Reply, turns[1].Content)
}

func TestChatFailureLeavesPendingUserTurn(t *testing.T) {
	f := newFixture(3)

	_, err := f.pipe.Submit(context.Background(), "first")
	require.NoError(t, err)

	f.chat.err = errors.New("rate limited")
	_, err = f.pipe.Submit(context.Background(), "second")
	require.Error(t, err)

	// Transcript is turn one plus the optimistically appended user turn;
	// no phantom assistant turn, no counter bump, no extra snapshot.
	turns := f.pipe.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, session.RoleUser, turns[2].Role)
	assert.Equal(t, "second", turns[2].Content)
	assert.Equal(t, 1, f.pipe.CompletedTurns())
	assert.Len(t, f.persister.snapshots, 1)
	assert.Equal(t, StateAwaitingInput, f.pipe.State())

	// The pending user turn stays put; the session keeps going.
	f.chat.err = nil
	_, err = f.pipe.Submit(context.Background(), "second again")
	require.NoError(t, err)
	turns = f.pipe.Transcript()
	require.Len(t, turns, 5)
	assert.Equal(t, session.RoleUser, turns[2].Role)
	assert.Equal(t, session.RoleUser, turns[3].Role)
	assert.Equal(t, session.RoleAssistant, turns[4].Role)
}

func TestImageFailureKeepsTextTurn(t *testing.T) {
	f := newFixture(3)
	f.artist.err = errors.New("image backend down")

	var last *Result
	for i := 0; i < 3; i++ {
		res, err := f.pipe.Submit(context.Background(), "onward")
		require.NoError(t, err)
		last = res
	}

	assert.False(t, last.Illustrated)
	assert.Empty(t, last.IllustrationPath)
	require.Len(t, f.artist.scenes, 1, "the render was attempted on the 3rd turn")
	turns := f.pipe.Transcript()
	require.Len(t, turns, 6)
	assert.Equal(t, session.AvatarGameMaster, turns[5].Avatar)
}

func TestEmptyUtteranceRejected(t *testing.T) {
	f := newFixture(3)

	for _, utterance := range []string{"", "   ", "\n\t"} {
		_, err := f.pipe.Submit(context.Background(), utterance)
		assert.ErrorIs(t, err, ErrEmptyUtterance)
	}
	assert.Empty(t, f.pipe.Transcript())
	assert.Zero(t, f.chat.calls)
}

func TestSecondSubmitWhileInFlight(t *testing.T) {
	f := newFixture(3)
	f.chat.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.pipe.Submit(context.Background(), "slow turn")
		done <- err
	}()

	// Wait for the first turn to reach the backend call.
	require.Eventually(t, func() bool { return f.pipe.State() == StateSending }, time.Second, 5*time.Millisecond)

	_, err := f.pipe.Submit(context.Background(), "impatient")
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(f.chat.block)
	require.NoError(t, <-done)
	assert.Len(t, f.pipe.Transcript(), 2)
}

func TestPersistedAfterEveryTurn(t *testing.T) {
	f := newFixture(3)

	for i := 0; i < 2; i++ {
		_, err := f.pipe.Submit(context.Background(), "step")
		require.NoError(t, err)
	}

	require.Len(t, f.persister.snapshots, 2)
	assert.Len(t, f.persister.snapshots[0], 2)
	assert.Len(t, f.persister.snapshots[1], 4)
}

func TestPersistenceFailureIsNonFatal(t *testing.T) {
	f := newFixture(3)
	f.persister.err = errors.New("disk full")

	res, err := f.pipe.Submit(context.Background(), "keep going")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reply)
	assert.Equal(t, StateAwaitingInput, f.pipe.State())
}
