package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecollab/pkg/metrics"
)

func newTestRegistry(f *fixture, opts ...Option) *Registry {
	return NewRegistry(f.docs, f.presence, f.cfg, append([]Option{WithClock(f.clock)}, opts...)...)
}

func TestRegistryOpenIsIdempotent(t *testing.T) {
	f := newFixture()
	r := newTestRegistry(f)

	s1, created := r.Open("notes", "alice")
	require.True(t, created)
	s2, created := r.Open("notes", "alice")
	assert.False(t, created)
	assert.Same(t, s1, s2)

	other, created := r.Open("other", "alice")
	assert.True(t, created)
	assert.NotSame(t, s1, other)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryGeneratesParticipantID(t *testing.T) {
	f := newFixture()
	r := newTestRegistry(f)

	s, created := r.Open("notes", "")
	require.True(t, created)
	_, err := uuid.Parse(s.ParticipantID())
	assert.NoError(t, err)

	again, created := r.Open("notes", "")
	assert.True(t, created)
	assert.NotEqual(t, s.ParticipantID(), again.ParticipantID())
}

func TestRegistryLookupAndClose(t *testing.T) {
	f := newFixture()
	r := newTestRegistry(f)

	s, _ := r.Open("notes", "alice")
	got, ok := r.Lookup("notes", "alice")
	require.True(t, ok)
	assert.Same(t, s, got)

	s.OnLocalEdit("bye")
	assert.True(t, r.Close("notes", "alice"))
	assert.False(t, r.Close("notes", "alice"))
	assert.Equal(t, []string{"bye"}, f.docs.Commits())

	_, ok = r.Lookup("notes", "alice")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistryReplacesClosedSession(t *testing.T) {
	f := newFixture()
	r := newTestRegistry(f)

	s, _ := r.Open("notes", "alice")
	s.Close()

	_, ok := r.Lookup("notes", "alice")
	assert.False(t, ok)

	fresh, created := r.Open("notes", "alice")
	assert.True(t, created)
	assert.NotSame(t, s, fresh)
}

func TestRegistryCloseAll(t *testing.T) {
	f := newFixture()
	m, err := metrics.New()
	require.NoError(t, err)
	r := newTestRegistry(f, WithMetrics(m))

	a, _ := r.Open("notes", "a")
	b, _ := r.Open("notes", "b")
	a.OnLocalEdit("from a")

	r.CloseAll()
	assert.Zero(t, r.Len())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, []string{"from a"}, f.docs.Commits())
}
