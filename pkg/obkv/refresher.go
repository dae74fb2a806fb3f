package obkv

import (
	"context"
	"math/rand"
	"time"
)

// refresher periodically forces a blocking refresh of every table
// currently tracked by the metadata cache (spec.md §4.10 "Scheduled
// Refresher"). It runs until stop is closed.
type refresher struct {
	meta   *metadataCache
	logger Logger

	base    time.Duration
	jitterN time.Duration

	stop chan struct{}
	done chan struct{}
}

func newRefresher(meta *metadataCache, logger Logger, base, jitterCeiling time.Duration) *refresher {
	return &refresher{
		meta:    meta,
		logger:  logger,
		base:    base,
		jitterN: jitterCeiling,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// start launches the refresher's background loop. Call close to end it.
func (r *refresher) start() {
	go r.loop()
}

func (r *refresher) loop() {
	defer close(r.done)
	for {
		select {
		case <-time.After(r.nextDelay()):
			r.refreshAll()
		case <-r.stop:
			return
		}
	}
}

// nextDelay is base plus jitter bounded by jitterN (spec.md §4.10
// "scheduled at a fixed delay equal to table_entry_refresh_interval_base,
// with jitter bounded by table_entry_refresh_interval_ceiling").
func (r *refresher) nextDelay() time.Duration {
	if r.jitterN <= 0 {
		return r.base
	}
	return r.base + time.Duration(rand.Int63n(int64(r.jitterN)))
}

func (r *refresher) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), r.base)
	defer cancel()
	for _, table := range r.meta.tableNames() {
		if _, err := r.meta.getOrRefreshTableEntry(ctx, table, true, true); err != nil {
			r.logger.Log(LogLevelWarn, "scheduled table entry refresh failed", "table", table, "err", err)
		}
	}
}

func (r *refresher) close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.done
}
