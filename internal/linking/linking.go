package linking

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting      Status = "WAITING"
	StatusInitializing Status = "INITIALIZING"
	StatusConnected    Status = "CONNECTED"
	StatusExpired      Status = "EXPIRED"
)

const (
	QRLifetime     = 60 * time.Second
	HandshakeDelay = 2500 * time.Millisecond
	qrPrefix       = "WA_SESSION_"
)

type Snapshot struct {
	Status      Status     `json:"status"`
	QRValue     string     `json:"qr_value,omitempty"`
	ExpiresIn   int        `json:"expires_in_seconds"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// Linker simulates pairing a messaging account by QR code. Timed
// transitions are evaluated lazily whenever the state is read or changed.
type Linker struct {
	mu          sync.Mutex
	now         func() time.Time
	status      Status
	qr          string
	expiresAt   time.Time
	scannedAt   time.Time
	connectedAt time.Time
}

func NewLinker() *Linker {
	return newLinker(time.Now)
}

func newLinker(now func() time.Time) *Linker {
	l := &Linker{now: now}
	l.regenerate()
	return l
}

func (l *Linker) Status() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance()
	return l.snapshot()
}

// Scan moves a waiting QR code to INITIALIZING. In any other state it does nothing.
func (l *Linker) Scan() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance()
	if l.status == StatusWaiting {
		l.status = StatusInitializing
		l.scannedAt = l.now()
	}
	return l.snapshot()
}

func (l *Linker) Regenerate() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.regenerate()
	return l.snapshot()
}

func (l *Linker) Disconnect() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connectedAt = time.Time{}
	l.regenerate()
	return l.snapshot()
}

func (l *Linker) regenerate() {
	l.status = StatusWaiting
	l.qr = qrPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	l.expiresAt = l.now().Add(QRLifetime)
	l.scannedAt = time.Time{}
}

func (l *Linker) advance() {
	now := l.now()
	switch l.status {
	case StatusWaiting:
		if !now.Before(l.expiresAt) {
			l.status = StatusExpired
		}
	case StatusInitializing:
		if done := l.scannedAt.Add(HandshakeDelay); !now.Before(done) {
			l.status = StatusConnected
			l.connectedAt = done
		}
	}
}

func (l *Linker) snapshot() Snapshot {
	s := Snapshot{Status: l.status}
	if l.status == StatusWaiting {
		s.QRValue = l.qr
		s.ExpiresIn = int(l.expiresAt.Sub(l.now()).Seconds())
	}
	if l.status == StatusConnected {
		at := l.connectedAt
		s.ConnectedAt = &at
	}
	return s
}
