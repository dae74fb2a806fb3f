package obkv

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// connPool is the per-backend pool of authenticated connections
// (spec.md §4.2). Connections are created lazily by acquire, bounded by
// maxConns, with dial and login running on the caller's goroutine. warm
// can open minConns connections ahead of time on the client-wide
// initPool, but nothing in the client calls it.
type connPool struct {
	addr    ServerAddress
	session authSession

	dial  DialFunc
	login LoginFunc

	initPool *workerPool

	minConns int
	maxConns int

	mu     sync.Mutex
	idle   []Conn
	opened int
	cond   *sync.Cond
	closed bool
}

func newConnPool(addr ServerAddress, session authSession, dial DialFunc, login LoginFunc, initPool *workerPool, minConns, maxConns int) *connPool {
	p := &connPool{
		addr:     addr,
		session:  session,
		dial:     dial,
		login:    login,
		initPool: initPool,
		minConns: minConns,
		maxConns: maxConns,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// acquire returns an idle connection, opening a new one (up to
// maxConns) if none is idle. Callers block until a connection becomes
// available or ctx is done.
func (p *connPool) acquire(ctx context.Context, connectTimeout, loginTimeout time.Duration) (Conn, error) {
	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, fmt.Errorf("obkv: pool for %s is closed", p.addr)
		}
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return c, nil
		}
		if p.opened < p.maxConns {
			p.opened++
			p.mu.Unlock()
			conn, err := p.createConn(ctx, connectTimeout, loginTimeout)
			if err != nil {
				p.mu.Lock()
				p.opened--
				p.mu.Unlock()
				p.cond.Broadcast()
				return nil, err
			}
			return conn, nil
		}

		waitCh := make(chan struct{})
		go func() {
			p.mu.Lock()
			p.cond.Wait()
			p.mu.Unlock()
			close(waitCh)
		}()
		p.mu.Unlock()
		select {
		case <-waitCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		p.mu.Lock()
	}
}

func (p *connPool) createConn(ctx context.Context, connectTimeout, loginTimeout time.Duration) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	raw, err := p.dial(dialCtx, "tcp", p.addr.String())
	if err != nil {
		return nil, fmt.Errorf("obkv: dialing %s: %w", p.addr, err)
	}
	loginCtx, cancel2 := context.WithTimeout(ctx, loginTimeout)
	defer cancel2()
	conn, err := p.login(loginCtx, raw, p.session, loginTimeout)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("obkv: logging in to %s: %w", p.addr, err)
	}
	return conn, nil
}

// release returns conn to the idle set, waking one waiter.
func (p *connPool) release(conn Conn) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// discard drops a connection that errored instead of returning it to
// the idle set, so the next acquire opens a fresh one.
func (p *connPool) discard(conn Conn) {
	conn.Close()
	p.mu.Lock()
	p.opened--
	p.mu.Unlock()
	p.cond.Broadcast()
}

// warm asynchronously opens minConns connections on the shared init
// pool so the first real request does not pay full dial+login latency.
func (p *connPool) warm(connectTimeout, loginTimeout time.Duration) {
	p.mu.Lock()
	need := p.minConns - p.opened
	if need > 0 {
		p.opened += need
	}
	p.mu.Unlock()
	for i := 0; i < need; i++ {
		p.initPool.submit(func() {
			conn, err := p.createConn(context.Background(), connectTimeout, loginTimeout)
			if err != nil {
				p.mu.Lock()
				p.opened--
				p.mu.Unlock()
				return
			}
			p.release(conn)
		})
	}
}

// close drains and closes every idle connection. In-flight connections
// close themselves when released.
func (p *connPool) close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, c := range idle {
		c.Close()
	}
	p.cond.Broadcast()
}
