package erp

import (
	"context"
	"sync"
	"time"
)

// Session is a working authentication against one tenant database.
type Session struct {
	Database string
	UID      int64
}

// sessionProvider yields a working session for a database. Implementations
// must tolerate authentication failing independently on every acquisition:
// the service credential can be rotated or revoked between calls.
type sessionProvider interface {
	Session(ctx context.Context, database string) (Session, error)
	// Invalidate discards any cached session for the database.
	Invalidate(database string)
}

type authenticateFunc func(ctx context.Context, database string) (int64, error)

// reauthProvider authenticates on every call. Safest default: no session
// state survives between record operations.
type reauthProvider struct {
	authenticate authenticateFunc
}

func (p *reauthProvider) Session(ctx context.Context, database string) (Session, error) {
	uid, err := p.authenticate(ctx, database)
	if err != nil {
		return Session{}, err
	}
	return Session{Database: database, UID: uid}, nil
}

func (p *reauthProvider) Invalidate(string) {}

// cachedProvider keeps one session per database for a bounded TTL, falling
// back to a fresh authentication once it expires or is invalidated.
type cachedProvider struct {
	authenticate authenticateFunc
	ttl          time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]cachedSession
}

type cachedSession struct {
	session   Session
	expiresAt time.Time
}

func newCachedProvider(authenticate authenticateFunc, ttl time.Duration) *cachedProvider {
	return &cachedProvider{
		authenticate: authenticate,
		ttl:          ttl,
		now:          time.Now,
		sessions:     make(map[string]cachedSession),
	}
}

func (p *cachedProvider) Session(ctx context.Context, database string) (Session, error) {
	p.mu.Lock()
	cached, ok := p.sessions[database]
	p.mu.Unlock()

	if ok && p.now().Before(cached.expiresAt) {
		return cached.session, nil
	}

	uid, err := p.authenticate(ctx, database)
	if err != nil {
		p.Invalidate(database)
		return Session{}, err
	}

	session := Session{Database: database, UID: uid}
	p.mu.Lock()
	p.sessions[database] = cachedSession{session: session, expiresAt: p.now().Add(p.ttl)}
	p.mu.Unlock()

	return session, nil
}

func (p *cachedProvider) Invalidate(database string) {
	p.mu.Lock()
	delete(p.sessions, database)
	p.mu.Unlock()
}
