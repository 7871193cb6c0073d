package linking

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLinker() (*Linker, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	return newLinker(c.now), c
}

func TestFreshLinkerWaits(t *testing.T) {
	l, _ := newTestLinker()
	s := l.Status()
	assert.Equal(t, StatusWaiting, s.Status)
	assert.True(t, strings.HasPrefix(s.QRValue, "WA_SESSION_"))
	assert.Equal(t, 60, s.ExpiresIn)
	assert.Nil(t, s.ConnectedAt)
}

func TestScanConnectsAfterHandshake(t *testing.T) {
	l, c := newTestLinker()
	c.advance(10 * time.Second)

	s := l.Scan()
	assert.Equal(t, StatusInitializing, s.Status)
	assert.Empty(t, s.QRValue)

	c.advance(2 * time.Second)
	assert.Equal(t, StatusInitializing, l.Status().Status)

	c.advance(time.Second)
	s = l.Status()
	assert.Equal(t, StatusConnected, s.Status)
	require.NotNil(t, s.ConnectedAt)
	assert.Equal(t, c.t.Add(-500*time.Millisecond), *s.ConnectedAt)

	c.advance(time.Hour)
	assert.Equal(t, StatusConnected, l.Status().Status, "a connected link never expires")
}

func TestQRExpires(t *testing.T) {
	l, c := newTestLinker()
	c.advance(59 * time.Second)
	assert.Equal(t, StatusWaiting, l.Status().Status)

	c.advance(time.Second)
	assert.Equal(t, StatusExpired, l.Status().Status)

	assert.Equal(t, StatusExpired, l.Scan().Status, "scanning an expired code does nothing")
}

func TestRegenerateIssuesNewCode(t *testing.T) {
	l, c := newTestLinker()
	first := l.Status().QRValue
	c.advance(2 * time.Minute)

	s := l.Regenerate()
	assert.Equal(t, StatusWaiting, s.Status)
	assert.NotEqual(t, first, s.QRValue)
	assert.Equal(t, 60, s.ExpiresIn)
}

func TestDisconnect(t *testing.T) {
	l, c := newTestLinker()
	l.Scan()
	c.advance(3 * time.Second)
	require.Equal(t, StatusConnected, l.Status().Status)

	s := l.Disconnect()
	assert.Equal(t, StatusWaiting, s.Status)
	assert.Nil(t, s.ConnectedAt)
	assert.NotEmpty(t, s.QRValue)
}

func TestScanWhileConnectedIsNoop(t *testing.T) {
	l, c := newTestLinker()
	l.Scan()
	c.advance(3 * time.Second)
	connected := l.Status()

	s := l.Scan()
	assert.Equal(t, StatusConnected, s.Status)
	assert.Equal(t, connected.ConnectedAt, s.ConnectedAt)
}
