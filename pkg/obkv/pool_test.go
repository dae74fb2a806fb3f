package obkv

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func noopDial(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go server.Close()
	return client, nil
}

func countingLogin(n *int32AtomicLike) LoginFunc {
	return func(ctx context.Context, raw net.Conn, session authSession, timeout time.Duration) (Conn, error) {
		n.add(1)
		return &fakeConn{exec: successBatchExec}, nil
	}
}

// int32AtomicLike avoids importing sync/atomic's typed counters just
// for a test-local tally.
type int32AtomicLike struct {
	mu sync.Mutex
	v  int
}

func (c *int32AtomicLike) add(d int) {
	c.mu.Lock()
	c.v += d
	c.mu.Unlock()
}

func (c *int32AtomicLike) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func TestConnPoolAcquireReusesReleasedConn(t *testing.T) {
	var logins int32AtomicLike
	session := authSession{tenant: "t", user: "u", database: "d"}
	initPool := newWorkerPool(1)
	defer initPool.close()
	p := newConnPool(ServerAddress{Host: "h", SvrPort: 1}, session, noopDial, countingLogin(&logins), initPool, 0, 2)

	c1, err := p.acquire(context.Background(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.release(c1)

	c2, err := p.acquire(context.Background(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if c1 != c2 {
		t.Error("acquire after release opened a new connection instead of reusing the idle one")
	}
	if got := logins.get(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
}

func TestConnPoolAcquireBlocksAtMaxConns(t *testing.T) {
	var logins int32AtomicLike
	session := authSession{tenant: "t", user: "u", database: "d"}
	initPool := newWorkerPool(1)
	defer initPool.close()
	p := newConnPool(ServerAddress{Host: "h", SvrPort: 1}, session, noopDial, countingLogin(&logins), initPool, 0, 1)

	c1, err := p.acquire(context.Background(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.acquire(ctx, time.Second, time.Second); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("acquire at max conns = %v, want context.DeadlineExceeded", err)
	}

	p.release(c1)
}

func TestConnPoolDiscardAllowsNewConnection(t *testing.T) {
	var logins int32AtomicLike
	session := authSession{tenant: "t", user: "u", database: "d"}
	initPool := newWorkerPool(1)
	defer initPool.close()
	p := newConnPool(ServerAddress{Host: "h", SvrPort: 1}, session, noopDial, countingLogin(&logins), initPool, 0, 1)

	c1, err := p.acquire(context.Background(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.discard(c1)

	c2, err := p.acquire(context.Background(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("acquire after discard: %v", err)
	}
	p.release(c2)
	if got := logins.get(); got != 2 {
		t.Errorf("logins = %d, want 2 (one per dialed connection)", got)
	}
}

func TestConnPoolCloseRejectsFurtherAcquire(t *testing.T) {
	var logins int32AtomicLike
	session := authSession{tenant: "t", user: "u", database: "d"}
	initPool := newWorkerPool(1)
	defer initPool.close()
	p := newConnPool(ServerAddress{Host: "h", SvrPort: 1}, session, noopDial, countingLogin(&logins), initPool, 0, 2)
	p.close()

	if _, err := p.acquire(context.Background(), time.Second, time.Second); err == nil {
		t.Error("acquire on a closed pool succeeded, want error")
	}
}

func TestPoolRegistryGetOrCreateSharesPool(t *testing.T) {
	var logins int32AtomicLike
	r := newPoolRegistry(1, 0, 2, noopDial, countingLogin(&logins))
	defer r.closeAll()
	addr := ServerAddress{Host: "h", SvrPort: 1}
	session := authSession{tenant: "t", user: "u", database: "d"}

	p1 := r.getOrCreate(addr, session)
	p2 := r.getOrCreate(addr, session)
	if p1 != p2 {
		t.Error("getOrCreate returned distinct pools for the same address")
	}
}

func TestPoolRegistryRetainClosesDroppedPools(t *testing.T) {
	var logins int32AtomicLike
	r := newPoolRegistry(1, 0, 2, noopDial, countingLogin(&logins))
	defer r.closeAll()
	keepAddr := ServerAddress{Host: "keep", SvrPort: 1}
	dropAddr := ServerAddress{Host: "drop", SvrPort: 2}
	session := authSession{tenant: "t", user: "u", database: "d"}

	r.getOrCreate(keepAddr, session)
	dropped := r.getOrCreate(dropAddr, session)

	r.retain(map[addrKey]struct{}{keepAddr.Key(): {}})

	if _, err := dropped.acquire(context.Background(), time.Second, time.Second); err == nil {
		t.Error("acquire on a retained-out pool succeeded, want error (pool should be closed)")
	}
}

func TestBackendRegistryGetOrAddIsIdempotent(t *testing.T) {
	var logins int32AtomicLike
	pools := newPoolRegistry(1, 0, 2, noopDial, countingLogin(&logins))
	defer pools.closeAll()
	c := defaultCfg()
	backends := newBackendRegistry(pools, &c)
	addr := ServerAddress{Host: "h", SvrPort: 1}
	session := authSession{tenant: "t", user: "u", database: "d"}

	h1 := backends.getOrAdd(addr, session)
	h2 := backends.getOrAdd(addr, session)
	if h1 != h2 {
		t.Error("getOrAdd returned distinct handles for the same address")
	}
	if got, ok := backends.get(addr); !ok || got != h1 {
		t.Error("get did not return the handle registered by getOrAdd")
	}
}

func TestBackendRegistryDrainClearsHandles(t *testing.T) {
	var logins int32AtomicLike
	pools := newPoolRegistry(1, 0, 2, noopDial, countingLogin(&logins))
	c := defaultCfg()
	backends := newBackendRegistry(pools, &c)
	addr := ServerAddress{Host: "h", SvrPort: 1}
	session := authSession{tenant: "t", user: "u", database: "d"}
	backends.getOrAdd(addr, session)

	backends.drain()

	if _, ok := backends.get(addr); ok {
		t.Error("get found a handle after drain")
	}
}

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	p := newWorkerPool(2)
	defer p.close()

	var mu sync.Mutex
	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.submit(func() {
			defer wg.Done()
			mu.Lock()
			n++
			mu.Unlock()
		})
	}
	wg.Wait()
	if n != 10 {
		t.Errorf("n = %d, want 10", n)
	}
}

func TestQueryPermitsUnboundedNeverBlocks(t *testing.T) {
	p := newQueryPermits(0)
	for i := 0; i < 5; i++ {
		release, err := p.acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		release()
	}
	if got := p.inUse(); got != 0 {
		t.Errorf("inUse() = %d, want 0", got)
	}
}

func TestQueryPermitsBoundedBlocksAtLimit(t *testing.T) {
	p := newQueryPermits(1)
	release, err := p.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := p.inUse(); got != 1 {
		t.Errorf("inUse() = %d, want 1", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second acquire at limit 1 = %v, want context.DeadlineExceeded", err)
	}
	release()

	release2, err := p.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}
