// Package lock serializes same-entity writes within the process.
//
// Locks are advisory and keyed by (container type, id). A tool call
// carries a Token in its context; work inside the call that re-acquires
// a key the call already holds passes through instead of deadlocking.
// Nothing here coordinates across processes.
package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

// Key identifies a locked entity.
type Key struct {
	ContainerType status.ContainerType
	ID            string
}

// ContainerKey builds the advisory lock key for a container.
func ContainerKey(ct status.ContainerType, id string) Key {
	return Key{ContainerType: ct, ID: id}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.ContainerType, k.ID)
}

// Token identifies one logical holder, usually one tool call.
type Token struct {
	id uint64
}

var lastToken atomic.Uint64

// NewToken returns a token no other holder shares.
func NewToken() *Token {
	return &Token{id: lastToken.Add(1)}
}

func (t *Token) String() string {
	return fmt.Sprintf("holder-%d", t.id)
}

type ctxKey struct{}

// WithToken returns a context whose lock acquisitions share tok.
func WithToken(ctx context.Context, tok *Token) context.Context {
	return context.WithValue(ctx, ctxKey{}, tok)
}

// TokenFrom returns the holder token carried by ctx, if any.
func TokenFrom(ctx context.Context) *Token {
	tok, _ := ctx.Value(ctxKey{}).(*Token)
	return tok
}

// EnsureToken returns ctx unchanged when it already carries a token,
// otherwise a child context with a fresh one. Tool handlers call it
// once at entry so nested writes re-enter their own locks.
func EnsureToken(ctx context.Context) context.Context {
	if TokenFrom(ctx) != nil {
		return ctx
	}
	return WithToken(ctx, NewToken())
}

// KeyedLock is a table of per-key mutexes. The zero value is not
// usable; construct with NewKeyedLock.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// entry tracks one key. refs counts the holder plus waiters so the
// entry is dropped from the table only when nobody references it.
type entry struct {
	sem   chan struct{}
	owner *Token
	depth int
	refs  int
}

// NewKeyedLock returns an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[Key]*entry)}
}

// Acquire blocks until the key is held by the context's token, or ctx
// is done. The returned release must be called exactly once. Acquiring
// a key the token already holds succeeds immediately; the key stays
// held until the outermost release.
func (l *KeyedLock) Acquire(ctx context.Context, key Key) (release func(), err error) {
	tok := TokenFrom(ctx)
	if tok == nil {
		tok = NewToken()
	}

	l.mu.Lock()
	e := l.lookup(key)
	if e.owner == tok {
		e.depth++
		l.mu.Unlock()
		return func() { l.release(tok, key) }, nil
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.mu.Lock()
		e.refs--
		l.drop(key, e)
		l.mu.Unlock()
		return nil, ctx.Err()
	}

	l.mu.Lock()
	e.owner = tok
	e.depth = 1
	l.mu.Unlock()
	return func() { l.release(tok, key) }, nil
}

// TryAcquire is Acquire without waiting: it reports false when another
// holder has the key.
func (l *KeyedLock) TryAcquire(ctx context.Context, key Key) (release func(), ok bool) {
	tok := TokenFrom(ctx)
	if tok == nil {
		tok = NewToken()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.lookup(key)
	if e.owner == tok {
		e.depth++
		return func() { l.release(tok, key) }, true
	}
	select {
	case e.sem <- struct{}{}:
		e.owner = tok
		e.depth = 1
		e.refs++
		return func() { l.release(tok, key) }, true
	default:
		l.drop(key, e)
		return nil, false
	}
}

// Held reports whether anyone currently holds the key.
func (l *KeyedLock) Held(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return ok && e.owner != nil
}

// lookup returns the live entry for key, creating it if needed.
// Callers must hold l.mu.
func (l *KeyedLock) lookup(key Key) *entry {
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	return e
}

// drop removes an unreferenced, unheld entry. Callers must hold l.mu.
func (l *KeyedLock) drop(key Key, e *entry) {
	if e.refs == 0 && e.owner == nil {
		delete(l.entries, key)
	}
}

func (l *KeyedLock) release(tok *Token, key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok || e.owner != tok {
		// Double release or foreign release; advisory locks shrug.
		return
	}
	e.depth--
	if e.depth > 0 {
		return
	}
	e.owner = nil
	<-e.sem
	e.refs--
	l.drop(key, e)
}
