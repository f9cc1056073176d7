// Package connectors contains the vendor connector adapters, the dispatch
// registry and the bounded connection pool that leases live sessions.
package connectors

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
)

var (
	// ErrAcquireTimeout indicates no connection became available within the
	// acquire window
	ErrAcquireTimeout = errors.New("pool: acquire timed out")

	// ErrPoolClosed indicates the pool was shut down
	ErrPoolClosed = errors.New("pool: closed")
)

// PoolOptions bounds the pool.
type PoolOptions struct {
	MaxSize        int
	MinSize        int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	HealthInterval time.Duration
}

// DefaultPoolOptions returns the hub-wide pool defaults.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxSize:        10,
		MinSize:        2,
		AcquireTimeout: 10 * time.Second,
		IdleTimeout:    5 * time.Minute,
		HealthInterval: time.Minute,
	}
}

func (o *PoolOptions) normalize() {
	if o.MaxSize < 1 {
		o.MaxSize = 10
	}
	if o.MinSize < 0 {
		o.MinSize = 0
	}
	if o.MinSize > o.MaxSize {
		o.MinSize = o.MaxSize
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = time.Minute
	}
}

// poolKey scopes connections to one tenant's session with one system.
type poolKey struct {
	tenantID uuid.UUID
	system   accounting.AccountingSystem
}

// pooledConn is one live connector session.
type pooledConn struct {
	id         uuid.UUID
	key        poolKey
	connector  accounting.Connector
	createdAt  time.Time
	lastUsedAt time.Time
	inUse      bool
	healthy    bool
	useCount   int
}

func (c *pooledConn) ID() uuid.UUID { return c.id }

func (c *pooledConn) Connector() accounting.Connector { return c.connector }

var _ accounting.PooledConnection = (*pooledConn)(nil)

// waiter is one blocked Acquire. It is handed either a released connection
// for its key, or a nil grant meaning capacity was reserved and it should
// dial its own.
type waiter struct {
	key poolKey
	ch  chan *pooledConn
}

// Statistics is a point-in-time snapshot of pool state.
type Statistics struct {
	Total    int
	InUse    int
	Idle     int
	Waiting  int
	BySystem map[accounting.AccountingSystem]int
}

// Pool is a bounded pool of live connector sessions keyed by
// (tenant, system). One mutex guards all state; dialing happens outside the
// lock with capacity reserved up front.
type Pool struct {
	opts     PoolOptions
	registry accounting.ConnectorRegistry
	logger   *zap.Logger

	mu      sync.Mutex
	conns   map[uuid.UUID]*pooledConn
	total   int
	waiters *list.List
	closed  bool

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ accounting.ConnectorPool = (*Pool)(nil)

// NewPool creates the pool and starts its health and idle-cleanup loops.
func NewPool(registry accounting.ConnectorRegistry, opts PoolOptions, logger *zap.Logger) *Pool {
	opts.normalize()
	p := &Pool{
		opts:     opts,
		registry: registry,
		logger:   logger,
		conns:    make(map[uuid.UUID]*pooledConn),
		waiters:  list.New(),
		stop:     make(chan struct{}),
	}
	p.wg.Add(2)
	go p.healthLoop()
	go p.cleanupLoop()
	return p
}

// Acquire leases a live session for the config. It reuses a healthy idle
// session, dials a new one while under the size bound, or blocks FIFO until
// a session frees up, failing with ErrAcquireTimeout after the window.
func (p *Pool) Acquire(ctx context.Context, config *accounting.Config, settings *accounting.ConnectionSettings) (accounting.PooledConnection, error) {
	key := poolKey{tenantID: config.TenantID, system: config.System}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if conn := p.idleForKeyLocked(key); conn != nil {
		conn.inUse = true
		conn.useCount++
		conn.lastUsedAt = time.Now()
		p.mu.Unlock()
		return conn, nil
	}

	if p.total < p.opts.MaxSize {
		p.total++
		p.mu.Unlock()
		return p.dial(ctx, key, settings)
	}

	w := &waiter{key: key, ch: make(chan *pooledConn, 1)}
	elem := p.waiters.PushBack(w)
	p.mu.Unlock()

	timer := time.NewTimer(p.opts.AcquireTimeout)
	defer timer.Stop()

	select {
	case conn, ok := <-w.ch:
		if !ok {
			// Shutdown closed the channel; no capacity was reserved.
			return nil, ErrPoolClosed
		}
		if conn == nil {
			// Capacity grant: total was already reserved for us.
			return p.dial(ctx, key, settings)
		}
		return conn, nil
	case <-timer.C:
		return nil, p.abandonWait(elem, w, ErrAcquireTimeout)
	case <-ctx.Done():
		return nil, p.abandonWait(elem, w, ctx.Err())
	}
}

// abandonWait removes a waiter from the queue, draining a grant that raced
// with the timeout so capacity is not leaked.
func (p *Pool) abandonWait(elem *list.Element, w *waiter, cause error) error {
	p.mu.Lock()
	p.waiters.Remove(elem)
	p.mu.Unlock()

	select {
	case conn, ok := <-w.ch:
		switch {
		case !ok:
			return ErrPoolClosed
		case conn != nil:
			p.Release(conn.id)
		default:
			p.mu.Lock()
			p.total--
			p.notifyWaiterLocked()
			p.mu.Unlock()
		}
	default:
	}
	return cause
}

func (p *Pool) dial(ctx context.Context, key poolKey, settings *accounting.ConnectionSettings) (accounting.PooledConnection, error) {
	connector, err := p.registry.New(key.system)
	if err == nil {
		err = connector.Connect(ctx, settings)
	}
	if err != nil {
		p.mu.Lock()
		p.total--
		p.notifyWaiterLocked()
		p.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	conn := &pooledConn{
		id:         uuid.New(),
		key:        key,
		connector:  connector,
		createdAt:  now,
		lastUsedAt: now,
		inUse:      true,
		healthy:    true,
		useCount:   1,
	}

	p.mu.Lock()
	if p.closed {
		p.total--
		p.mu.Unlock()
		_ = connector.Disconnect(context.Background())
		return nil, ErrPoolClosed
	}
	p.conns[conn.id] = conn
	p.mu.Unlock()
	return conn, nil
}

// Release returns a session to the pool, handing it straight to the oldest
// waiter for the same key when one is blocked.
func (p *Pool) Release(id uuid.UUID) {
	p.mu.Lock()
	conn, ok := p.conns[id]
	if !ok || !conn.inUse {
		p.mu.Unlock()
		return
	}
	conn.lastUsedAt = time.Now()

	if conn.healthy {
		for e := p.waiters.Front(); e != nil; e = e.Next() {
			w := e.Value.(*waiter)
			if w.key == conn.key {
				p.waiters.Remove(e)
				conn.useCount++
				p.mu.Unlock()
				w.ch <- conn
				return
			}
		}
	}

	conn.inUse = false
	unhealthy := !conn.healthy
	p.mu.Unlock()

	if unhealthy {
		p.Remove(id)
	}
}

// Remove discards a session, e.g. after an authentication failure, and
// grants the freed capacity to the oldest waiter.
func (p *Pool) Remove(id uuid.UUID) {
	p.mu.Lock()
	conn, ok := p.conns[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.conns, id)
	p.total--
	p.notifyWaiterLocked()
	p.mu.Unlock()

	p.disconnect(conn)
}

// notifyWaiterLocked reserves freed capacity for the oldest waiter. Caller
// holds p.mu.
func (p *Pool) notifyWaiterLocked() {
	if p.closed || p.total >= p.opts.MaxSize {
		return
	}
	e := p.waiters.Front()
	if e == nil {
		return
	}
	w := e.Value.(*waiter)
	p.waiters.Remove(e)
	p.total++
	w.ch <- nil
}

// MarkUnhealthy flags a leased session so Release destroys it instead of
// recycling it.
func (p *Pool) MarkUnhealthy(id uuid.UUID) {
	p.mu.Lock()
	if conn, ok := p.conns[id]; ok {
		conn.healthy = false
	}
	p.mu.Unlock()
}

// GetStatistics snapshots pool occupancy.
func (p *Pool) GetStatistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Statistics{
		Total:    p.total,
		Waiting:  p.waiters.Len(),
		BySystem: make(map[accounting.AccountingSystem]int),
	}
	for _, conn := range p.conns {
		if conn.inUse {
			stats.InUse++
		} else {
			stats.Idle++
		}
		stats.BySystem[conn.key.system]++
	}
	return stats
}

// ClearAll drops every connection, including leased ones.
func (p *Pool) ClearAll() {
	p.mu.Lock()
	dropped := make([]*pooledConn, 0, len(p.conns))
	for id, conn := range p.conns {
		delete(p.conns, id)
		dropped = append(dropped, conn)
	}
	p.total = 0
	p.mu.Unlock()

	for _, conn := range dropped {
		p.disconnect(conn)
	}
}

// Shutdown stops the background loops, rejects blocked waiters and closes
// every connection.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	for p.waiters.Len() > 0 {
		e := p.waiters.Front()
		p.waiters.Remove(e)
		close(e.Value.(*waiter).ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.ClearAll()
}

func (p *Pool) idleForKeyLocked(key poolKey) *pooledConn {
	for _, conn := range p.conns {
		if conn.key == key && !conn.inUse && conn.healthy {
			return conn
		}
	}
	return nil
}

func (p *Pool) disconnect(conn *pooledConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.connector.Disconnect(ctx); err != nil && p.logger != nil {
		p.logger.Warn("disconnect failed",
			zap.String("system", conn.key.system.String()),
			zap.String("connection_id", conn.id.String()),
			zap.Error(err))
	}
}

// healthLoop checks idle connections; a connection is flagged on its first
// failed check and removed only if it fails again on the next sweep.
func (p *Pool) healthLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweepUnhealthy()
		}
	}
}

func (p *Pool) sweepUnhealthy() {
	p.mu.Lock()
	idle := make([]*pooledConn, 0)
	for _, conn := range p.conns {
		if !conn.inUse {
			idle = append(idle, conn)
		}
	}
	p.mu.Unlock()

	for _, conn := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := conn.connector.TestConnection(ctx)
		cancel()

		p.mu.Lock()
		cur, ok := p.conns[conn.id]
		if !ok || cur.inUse {
			p.mu.Unlock()
			continue
		}
		if err == nil {
			// A flagged connection that checks out clean is restored.
			cur.healthy = true
			p.mu.Unlock()
			continue
		}
		if cur.healthy {
			cur.healthy = false
			p.mu.Unlock()
			if p.logger != nil {
				p.logger.Info("connection failed health check",
					zap.String("system", conn.key.system.String()),
					zap.String("connection_id", conn.id.String()),
					zap.Error(err))
			}
			continue
		}
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Info("removing unhealthy connection",
				zap.String("system", conn.key.system.String()),
				zap.String("connection_id", conn.id.String()),
				zap.Error(err))
		}
		p.Remove(conn.id)
	}
}

// cleanupLoop destroys connections idle past the idle timeout, keeping at
// least MinSize around. Runs at half the idle timeout so a connection idles
// at most 1.5x the configured limit.
func (p *Pool) cleanupLoop() {
	defer p.wg.Done()
	interval := p.opts.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	now := time.Now()
	p.mu.Lock()
	expired := make([]uuid.UUID, 0)
	remaining := p.total
	for _, conn := range p.conns {
		if remaining <= p.opts.MinSize {
			break
		}
		if !conn.inUse && now.Sub(conn.lastUsedAt) > p.opts.IdleTimeout {
			expired = append(expired, conn.id)
			remaining--
		}
	}
	p.mu.Unlock()

	for _, id := range expired {
		p.Remove(id)
	}
}
