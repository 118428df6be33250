package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecollab/internal/presence"
	"livecollab/pkg/clock"
	"livecollab/store"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

const debounce = 500 * time.Millisecond

// countingStore records every commit that reaches the real store.
type countingStore struct {
	*store.DocumentStore

	mu      sync.Mutex
	commits []string
}

func (c *countingStore) Commit(key, text string) int64 {
	c.mu.Lock()
	c.commits = append(c.commits, text)
	c.mu.Unlock()
	return c.DocumentStore.Commit(key, text)
}

func (c *countingStore) Commits() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commits...)
}

type fixture struct {
	clock    *clock.Manual
	docs     *countingStore
	presence *presence.Tracker
	cfg      Config
}

func newFixture() *fixture {
	c := clock.NewManual(epoch)
	return &fixture{
		clock:    c,
		docs:     &countingStore{DocumentStore: store.New(store.WithClock(c))},
		presence: presence.NewTracker(),
		cfg:      Config{DebounceInterval: debounce, LivenessWindow: 3 * time.Second},
	}
}

func (f *fixture) open(key, participant string) *Session {
	return New(key, participant, f.docs, f.presence, f.cfg, WithClock(f.clock))
}

func TestNewLoadsCurrentDocument(t *testing.T) {
	f := newFixture()
	f.docs.DocumentStore.Commit("notes", "existing")

	s := f.open("notes", "a")
	info := s.Info()
	assert.Equal(t, "existing", info.LocalText)
	assert.Equal(t, int64(1), info.KnownVersion)
	assert.Equal(t, fingerprint("existing"), info.KnownHash)
	assert.Equal(t, Idle, info.State)
	assert.False(t, info.IsTyping)
	assert.Nil(t, info.PendingSaveDeadline)

	res := s.Poll(f.clock.Now())
	assert.False(t, res.TextChanged)
	assert.Equal(t, "existing", res.Text)
	assert.Equal(t, 1, res.ActiveUserCount)
}

func TestLocalEditSchedulesSave(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "a")

	s.OnLocalEdit("hello")
	info := s.Info()
	assert.Equal(t, SaveScheduled, info.State)
	assert.True(t, info.IsTyping)
	require.NotNil(t, info.PendingSaveDeadline)
	assert.Equal(t, epoch.Add(debounce), *info.PendingSaveDeadline)
	assert.Empty(t, f.docs.Commits())

	f.clock.Advance(debounce)

	info = s.Info()
	assert.Equal(t, Idle, info.State)
	assert.Nil(t, info.PendingSaveDeadline)
	assert.Equal(t, int64(1), info.KnownVersion)
	assert.Equal(t, []string{"hello"}, f.docs.Commits())
	assert.Equal(t, "hello", f.docs.Get("notes").Text)
}

func TestDebounceCollapsesBurst(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "a")

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		s.OnLocalEdit(text)
		f.clock.Advance(debounce - time.Millisecond)
	}
	assert.Empty(t, f.docs.Commits(), "no save may fire while edits keep arriving")

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"hello"}, f.docs.Commits())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestTypingSuppressesPull(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "a")

	s.OnLocalEdit("mine")
	for i := 0; i < 5; i++ {
		f.docs.DocumentStore.Commit("notes", "theirs")
		res := s.Poll(f.clock.Now())
		assert.False(t, res.TextChanged)
		assert.Equal(t, "mine", res.Text)
		assert.Equal(t, SaveScheduled, res.State)
	}
	assert.Equal(t, "mine", s.Text())
}

func TestPollAfterOwnCommitIsNoop(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "a")

	s.OnLocalEdit("hello")
	f.clock.Advance(debounce)

	res := s.Poll(f.clock.Now())
	assert.False(t, res.TextChanged)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, "hello", res.Text)
}

func TestPollAppliesRemoteText(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "b")

	f.docs.DocumentStore.Commit("notes", "remote")
	f.clock.Advance(time.Second)
	res := s.Poll(f.clock.Now())

	assert.True(t, res.TextChanged)
	assert.Equal(t, "remote", res.Text)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, f.clock.Now(), res.LastSyncedAt)

	info := s.Info()
	assert.Equal(t, fingerprint("remote"), info.KnownHash)

	res = s.Poll(f.clock.Now())
	assert.False(t, res.TextChanged)
}

func TestPollIdenticalContentUpdatesVersionOnly(t *testing.T) {
	f := newFixture()
	f.docs.DocumentStore.Commit("notes", "same")
	s := f.open("notes", "b")

	f.docs.DocumentStore.Commit("notes", "same")
	f.docs.DocumentStore.Commit("notes", "same")

	res := s.Poll(f.clock.Now())
	assert.False(t, res.TextChanged)
	assert.Equal(t, int64(3), res.Version)
	assert.Equal(t, int64(3), s.Info().KnownVersion)
}

func TestBlurFlushesImmediately(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "a")

	s.OnLocalEdit("draft")
	s.OnBlur()

	assert.Equal(t, []string{"draft"}, f.docs.Commits())
	assert.Equal(t, Idle, s.Info().State)
	assert.Zero(t, f.clock.Pending(), "blur must revoke the debounce timer")

	f.clock.Advance(time.Hour)
	assert.Len(t, f.docs.Commits(), 1, "revoked deadline must not fire")
}

func TestBlurWhenIdleDoesNotCommit(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "a")

	s.OnBlur()
	s.OnBlur()
	assert.Empty(t, f.docs.Commits())
	assert.Equal(t, int64(0), f.docs.Get("notes").Version)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	f := newFixture()
	s := f.open("notes", "a")

	s.OnLocalEdit("one")
	stale := s.Info().PendingSaveDeadline
	require.NotNil(t, stale)

	s.mu.Lock()
	old := s.pending
	s.mu.Unlock()

	s.OnLocalEdit("two")
	// Simulate the old timer having already been dequeued when it was revoked.
	s.fire(old)
	assert.Empty(t, f.docs.Commits())

	f.clock.Advance(debounce)
	assert.Equal(t, []string{"two"}, f.docs.Commits())
}

func TestCloseFlushesAndLeaves(t *testing.T) {
	f := newFixture()
	a := f.open("notes", "a")
	b := f.open("notes", "b")
	a.Poll(f.clock.Now())
	assert.Equal(t, 2, b.Poll(f.clock.Now()).ActiveUserCount)

	a.OnLocalEdit("last words")
	a.Close()
	a.Close()

	assert.True(t, a.IsClosed())
	assert.Equal(t, []string{"last words"}, f.docs.Commits())
	assert.Equal(t, 1, b.Poll(f.clock.Now()).ActiveUserCount)

	a.OnLocalEdit("ignored")
	a.OnBlur()
	f.clock.Advance(time.Hour)
	assert.Len(t, f.docs.Commits(), 1)
	assert.Zero(t, a.Poll(f.clock.Now()).ActiveUserCount)
}

func TestPresenceExpiresWhenPollingStops(t *testing.T) {
	f := newFixture()
	a := f.open("notes", "a")
	b := f.open("notes", "b")

	a.Poll(f.clock.Now())
	assert.Equal(t, 2, b.Poll(f.clock.Now()).ActiveUserCount)

	f.clock.Advance(3 * time.Second)
	assert.Equal(t, 1, b.Poll(f.clock.Now()).ActiveUserCount)

	a.Poll(f.clock.Now())
	assert.Equal(t, 2, b.Poll(f.clock.Now()).ActiveUserCount)
}

// Two participants on "notes": the later commit wins and both converge on it.
func TestLastWriteWinsScenario(t *testing.T) {
	f := newFixture()
	a := f.open("notes", "a")
	b := f.open("notes", "b")

	a.OnLocalEdit("hello")
	f.clock.Advance(debounce)
	doc := f.docs.Get("notes")
	assert.Equal(t, "hello", doc.Text)
	assert.Equal(t, int64(1), doc.Version)

	res := b.Poll(f.clock.Now())
	assert.True(t, res.TextChanged)
	assert.Equal(t, "hello", b.Text())
	assert.Equal(t, int64(1), b.Info().KnownVersion)

	b.OnLocalEdit("hello!")
	a.OnLocalEdit("hello world")
	a.OnBlur()
	assert.Equal(t, int64(2), f.docs.Get("notes").Version)

	res = b.Poll(f.clock.Now())
	assert.False(t, res.TextChanged)
	assert.Equal(t, "hello!", res.Text)

	f.clock.Advance(debounce)
	doc = f.docs.Get("notes")
	assert.Equal(t, "hello!", doc.Text)
	assert.Equal(t, int64(3), doc.Version)

	res = a.Poll(f.clock.Now())
	assert.True(t, res.TextChanged)
	assert.Equal(t, "hello!", res.Text)
	assert.Equal(t, int64(3), res.Version)

	res = b.Poll(f.clock.Now())
	assert.False(t, res.TextChanged)
	assert.Equal(t, "hello!", res.Text)
	assert.Equal(t, int64(3), res.Version)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultDebounceInterval, cfg.DebounceInterval)
	assert.Equal(t, DefaultLivenessWindow, cfg.LivenessWindow)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "typing", Typing.String())
	assert.Equal(t, "save_scheduled", SaveScheduled.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestRealClockDebounce(t *testing.T) {
	docs := store.New()
	s := New("rt", "a", docs, presence.NewTracker(), Config{DebounceInterval: 10 * time.Millisecond})

	s.OnLocalEdit("x")
	s.OnLocalEdit("xy")
	assert.Eventually(t, func() bool {
		return docs.Get("rt").Text == "xy"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), docs.Get("rt").Version)
}
