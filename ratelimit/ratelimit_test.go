package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEleventhLoginAttemptIsRejected(t *testing.T) {
	l := New(10, time.Hour)
	defer l.Close()

	for i := 0; i < 10; i++ {
		ok, remaining, _ := l.Allow("10.0.0.1")
		assert.True(t, ok, "attempt %d", i+1)
		assert.Equal(t, 9-i, remaining)
	}
	ok, _, _ := l.Allow("10.0.0.1")
	assert.False(t, ok, "11th attempt must be rejected")

	// other clients are unaffected
	ok, _, _ = l.Allow("10.0.0.2")
	assert.True(t, ok)
}

func TestWindowResets(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _, reset := l.Allow("k")
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), reset)

	ok, _, _ = l.Allow("k")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _, _ = l.Allow("k")
	assert.True(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(1, time.Millisecond)
	l.Close()
	l.Close()
}
