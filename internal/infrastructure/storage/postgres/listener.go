package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docgate/pkg/logger"
)

// ChangeChannel is the NOTIFY channel the change triggers publish on.
const ChangeChannel = "docgate_changed"

// ChangeKind identifies what a change notification is about.
type ChangeKind string

const (
	ChangeSchema      ChangeKind = "schema"
	ChangeEligibility ChangeKind = "eligibility"
	ChangeSettings    ChangeKind = "settings"
)

// Change is a decoded notification payload.
//
//	schema:<version>/<name>
//	eligibility:<user>/<type>
//	settings:
type Change struct {
	Kind ChangeKind
	// Version and Name are set for schema changes.
	Version, Name string
	// UserID and DocType are set for eligibility changes.
	UserID, DocType string
}

// ParseChange decodes a notification payload.
func ParseChange(payload string) (Change, error) {
	kind, rest, ok := strings.Cut(payload, ":")
	if !ok {
		return Change{}, fmt.Errorf("malformed change %q", payload)
	}
	switch ChangeKind(kind) {
	case ChangeSettings:
		return Change{Kind: ChangeSettings}, nil
	case ChangeSchema, ChangeEligibility:
		// Types and schema names never contain '/', user ids may.
		i := strings.LastIndex(rest, "/")
		if i <= 0 || i == len(rest)-1 {
			return Change{}, fmt.Errorf("malformed %s change %q", kind, payload)
		}
		if ChangeKind(kind) == ChangeSchema {
			return Change{Kind: ChangeSchema, Version: rest[:i], Name: rest[i+1:]}, nil
		}
		return Change{Kind: ChangeEligibility, UserID: rest[:i], DocType: rest[i+1:]}, nil
	}
	return Change{}, fmt.Errorf("unknown change kind %q", kind)
}

// ChangeHandler receives decoded changes. It must not block.
type ChangeHandler func(Change)

// Listener invalidates caches on NOTIFY events from the change triggers.
// It holds one pooled connection while running and reconnects on failure.
type Listener struct {
	pool    *pgxpool.Pool
	handler ChangeHandler

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a Listener that passes every change to handler.
func NewListener(pool *pgxpool.Pool, handler ChangeHandler) *Listener {
	return &Listener{pool: pool, handler: handler}
}

// Start begins listening in the background.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop(ctx)
	logger.Info(ctx, "change listener started", "channel", ChangeChannel)
}

// Stop ends the listener and waits for it to exit.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
	logger.Info(context.Background(), "change listener stopped")
}

func (l *Listener) listenLoop(ctx context.Context) {
	defer l.wg.Done()

	for ctx.Err() == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error(ctx, "failed to acquire connection for LISTEN", "error", err)
				sleep(ctx, time.Second)
			}
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
			logger.Error(ctx, "failed to LISTEN", "error", err)
			conn.Release()
			sleep(ctx, time.Second)
			continue
		}

		l.wait(ctx, conn)
		// The session still listens; do not hand it back to the pool.
		conn.Hijack().Close(context.Background())
	}
}

func (l *Listener) wait(ctx context.Context, conn *pgxpool.Conn) {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn(ctx, "change listener connection lost", "error", err)
				sleep(ctx, time.Second)
			}
			return
		}
		change, err := ParseChange(n.Payload)
		if err != nil {
			logger.Warn(ctx, "ignoring change notification", "payload", n.Payload, "error", err)
			continue
		}
		logger.Debug(ctx, "change received", "kind", change.Kind, "payload", n.Payload)
		l.dispatch(ctx, change)
	}
}

func (l *Listener) dispatch(ctx context.Context, change Change) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "change handler panic recovered", "kind", change.Kind, "panic", r)
		}
	}()
	l.handler(change)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
