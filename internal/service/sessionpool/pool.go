// Package sessionpool keeps reusable browser sessions keyed by agent identity and effective
// browser configuration, handing them out as exclusive leases.
package sessionpool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/target/cashier/internal/core"
	"github.com/target/cashier/internal/domain/model"
	"github.com/target/cashier/internal/domain/money"
	apperrors "github.com/target/cashier/internal/errors"
	"github.com/target/cashier/internal/observability/metrics"
	"github.com/target/cashier/internal/observability/statsd"
)

const (
	defaultMaxAgents = 8
	defaultTTL       = 10 * time.Minute
	defaultTimeout   = 30 * time.Second
	lockWaitLogAfter = 2 * time.Second
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("session pool is closed")

// Options configures a Pool.
type Options struct {
	// Required:
	Driver core.BrowserDriver

	// Optional:
	BaseURL          string
	MaxAgents        int           // pooled entries bound; defaults to 8
	TTL              time.Duration // idle time before a pooled entry is torn down; defaults to 10m
	ResourceBlocking bool
	DefaultTimeout   time.Duration // page timeout when the job sets none; defaults to 30s
	StateStore       core.SessionStateStore
	Now              func() time.Time
	Logger           *slog.Logger
	Metrics          statsd.Sink
}

// AcquireOptions describe the caller's effective browser configuration.
type AcquireOptions struct {
	Execution model.ExecutionOptions
	// BaseURL overrides the pool's console URL for this lease.
	BaseURL string
}

type entry struct {
	key        string
	browser    core.Browser
	session    core.BrowserSession
	page       core.Page
	createdAt  time.Time
	lastUsedAt time.Time
	inUse      bool
	elem       *list.Element
}

// Pool owns pooled browser sessions. Create one per process and pass it to executors.
type Pool struct {
	driver         core.BrowserDriver
	baseURL        string
	maxAgents      int
	ttl            time.Duration
	blocking       bool
	defaultTimeout time.Duration
	states         core.SessionStateStore
	now            func() time.Time
	logger         *slog.Logger
	metrics        statsd.Sink

	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // front = most recently used
	locks    map[string]*keyLock
	reserved int // pooled slots claimed by sessions still being created
	closed   bool
}

// New constructs a Pool.
func New(opts Options) (*Pool, error) {
	if opts.Driver == nil {
		return nil, errors.New("browser driver is required")
	}
	p := &Pool{
		driver:         opts.Driver,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		maxAgents:      opts.MaxAgents,
		ttl:            opts.TTL,
		blocking:       opts.ResourceBlocking,
		defaultTimeout: opts.DefaultTimeout,
		states:         opts.StateStore,
		now:            opts.Now,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		entries:        make(map[string]*entry),
		lru:            list.New(),
		locks:          make(map[string]*keyLock),
	}
	if p.maxAgents <= 0 {
		p.maxAgents = defaultMaxAgents
	}
	if p.ttl <= 0 {
		p.ttl = defaultTTL
	}
	if p.defaultTimeout <= 0 {
		p.defaultTimeout = defaultTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "session_pool")
	return p, nil
}

// MustNew constructs a Pool and panics on invalid options.
func MustNew(opts Options) *Pool {
	p, err := New(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create session pool: %v", err))
	}
	return p
}

// CacheKey identifies sessions that may be shared: same agent, console and browser flags.
func CacheKey(identity, baseURL string, headless, resourceBlocking bool) string {
	return strings.Join([]string{
		money.NormalizeText(identity),
		strings.TrimRight(baseURL, "/"),
		strconv.FormatBool(headless),
		strconv.FormatBool(resourceBlocking),
	}, "|")
}

// Len returns the number of pooled entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Acquire returns an exclusive lease on a session for identity. Calls for the same identity
// wait in FIFO order until the previous lease is released or invalidated, whatever browser
// flags they ask for; the cache key only selects which pooled session is reused. Only fast-profile
// executions are pooled; any other profile gets a single-use session.
func (p *Pool) Acquire(ctx context.Context, identity string, opts AcquireOptions) (*Lease, error) {
	baseURL := p.baseURL
	if opts.BaseURL != "" {
		baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	key := CacheKey(identity, baseURL, opts.Execution.Headless, p.blocking)
	timeout := opts.Execution.Timeout(p.defaultTimeout)

	if p.isClosed() {
		return nil, apperrors.Wrap(ErrPoolClosed, apperrors.ErrCodeResource, "acquire session")
	}

	waitStart := time.Now()
	lock, err := p.lockKey(ctx, money.NormalizeText(identity))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeResource, "wait for session lock")
	}
	wait := time.Since(waitStart)
	if wait > lockWaitLogAfter {
		p.logger.InfoContext(ctx, "waited for session lock", "cache_key", key, "wait", wait)
	}

	lease, err := p.acquireLocked(ctx, key, identity, opts.Execution, timeout)
	if err != nil {
		p.unlockKey(lock)
		return nil, err
	}
	lease.lock = lock
	lease.LockWait = wait

	switch {
	case lease.Reused:
		metrics.EmitPoolEvent(p.metrics, metrics.PoolEventReused, wait)
	case lease.Pooled:
		metrics.EmitPoolEvent(p.metrics, metrics.PoolEventCreated, wait)
	default:
		metrics.EmitPoolEvent(p.metrics, metrics.PoolEventIsolated, wait)
	}
	metrics.EmitPoolSize(p.metrics, p.Len())

	p.logger.DebugContext(ctx, "session leased",
		"cache_key", key, "reused", lease.Reused, "pooled", lease.Pooled)
	return lease, nil
}

// acquireLocked runs with the key lock held.
func (p *Pool) acquireLocked(
	ctx context.Context,
	key, identity string,
	exec model.ExecutionOptions,
	timeout time.Duration,
) (*Lease, error) {
	p.sweepExpired(ctx)

	if !exec.IsFastProfile() {
		return p.createLease(ctx, key, identity, exec, timeout, false)
	}

	if e := p.checkout(key); e != nil {
		if err := e.page.Probe(ctx); err != nil {
			p.logger.WarnContext(ctx, "pooled session failed liveness probe", "cache_key", key, "error", err)
			p.remove(e)
			p.teardown(ctx, e.browser, e.session, e.page)
			metrics.EmitPoolEvent(p.metrics, metrics.PoolEventDead, 0)
		} else {
			p.mu.Lock()
			e.lastUsedAt = p.now()
			p.lru.MoveToFront(e.elem)
			p.mu.Unlock()
			e.page.SetTimeout(timeout)
			return &Lease{
				Browser: e.browser, Session: e.session, Page: e.page,
				Reused: true, Pooled: true, Key: key,
				pool: p, entry: e,
			}, nil
		}
	}

	pooled := p.reserveSlot(ctx)
	lease, err := p.createLease(ctx, key, identity, exec, timeout, pooled)
	if pooled {
		p.mu.Lock()
		p.reserved--
		p.mu.Unlock()
	}
	return lease, err
}

// checkout marks the entry for key as in use and returns it.
func (p *Pool) checkout(key string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[key]
	if e != nil {
		e.inUse = true
	}
	return e
}

// reserveSlot claims room for a new pooled entry, evicting the least recently used idle entry
// at capacity. It returns false when every pooled entry is leased, in which case the caller
// gets a single-use session instead.
func (p *Pool) reserveSlot(ctx context.Context) bool {
	p.mu.Lock()
	var victim *entry
	if len(p.entries)+p.reserved >= p.maxAgents {
		for el := p.lru.Back(); el != nil; el = el.Prev() {
			if e, ok := el.Value.(*entry); ok && !e.inUse {
				victim = e
				break
			}
		}
		if victim == nil {
			p.mu.Unlock()
			p.logger.WarnContext(ctx, "session pool saturated, using single-use session",
				"max_agents", p.maxAgents)
			return false
		}
		p.removeLocked(victim)
	}
	p.reserved++
	p.mu.Unlock()

	if victim != nil {
		p.logger.InfoContext(ctx, "evicting least recently used session", "cache_key", victim.key)
		p.teardown(ctx, victim.browser, victim.session, victim.page)
		metrics.EmitPoolEvent(p.metrics, metrics.PoolEventEvicted, 0)
	}
	return true
}

func (p *Pool) createLease(
	ctx context.Context,
	key, identity string,
	exec model.ExecutionOptions,
	timeout time.Duration,
	pooled bool,
) (*Lease, error) {
	browser, err := p.driver.Launch(ctx, core.LaunchOptions{Headless: exec.Headless})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeResource, "launch browser")
	}

	session, err := browser.NewSession(ctx, core.SessionOptions{
		StorageState:   p.loadState(ctx, identity),
		BlockResources: p.blocking,
		Tracing:        exec.DebugTracing,
	})
	if err != nil {
		p.teardown(ctx, browser, nil, nil)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeResource, "create browser session")
	}

	page, err := session.NewPage(ctx)
	if err != nil {
		p.teardown(ctx, browser, session, nil)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeResource, "open page")
	}
	page.SetTimeout(timeout)

	lease := &Lease{
		Browser: browser, Session: session, Page: page,
		Pooled: pooled, Key: key, pool: p,
	}
	if !pooled {
		return lease, nil
	}

	now := p.now()
	e := &entry{
		key: key, browser: browser, session: session, page: page,
		createdAt: now, lastUsedAt: now, inUse: true,
	}
	p.mu.Lock()
	e.elem = p.lru.PushFront(e)
	p.entries[key] = e
	p.mu.Unlock()
	lease.entry = e
	return lease, nil
}

func (p *Pool) loadState(ctx context.Context, identity string) []byte {
	if p.states == nil {
		return nil
	}
	state, ok, err := p.states.Load(ctx, identity)
	if err != nil {
		p.logger.WarnContext(ctx, "load stored session state failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return state
}

// sweepExpired tears down idle entries whose last use is older than the TTL.
func (p *Pool) sweepExpired(ctx context.Context) {
	now := p.now()
	var expired []*entry

	p.mu.Lock()
	for el := p.lru.Back(); el != nil; {
		prev := el.Prev()
		if e, ok := el.Value.(*entry); ok && !e.inUse && now.Sub(e.lastUsedAt) > p.ttl {
			p.removeLocked(e)
			expired = append(expired, e)
		}
		el = prev
	}
	p.mu.Unlock()

	for _, e := range expired {
		p.logger.DebugContext(ctx, "session expired", "cache_key", e.key, "idle", now.Sub(e.lastUsedAt))
		p.teardown(ctx, e.browser, e.session, e.page)
		metrics.EmitPoolEvent(p.metrics, metrics.PoolEventExpired, 0)
	}
}

func (p *Pool) remove(e *entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(e)
}

func (p *Pool) removeLocked(e *entry) {
	if p.entries[e.key] == e {
		delete(p.entries, e.key)
	}
	if e.elem != nil {
		p.lru.Remove(e.elem)
		e.elem = nil
	}
}

// teardown closes whatever handles exist. Close errors and panics are logged, never returned.
func (p *Pool) teardown(ctx context.Context, browser core.Browser, session core.BrowserSession, page core.Page) {
	closeQuietly(ctx, p.logger, "page", page)
	closeQuietly(ctx, p.logger, "session", session)
	closeQuietly(ctx, p.logger, "browser", browser)
}

type closer interface{ Close() error }

func closeQuietly(ctx context.Context, logger *slog.Logger, what string, c closer) {
	if c == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.WarnContext(ctx, "panic while closing "+what, "panic", r)
		}
	}()
	if err := c.Close(); err != nil {
		logger.WarnContext(ctx, "close "+what+" failed", "error", err)
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close tears down every pooled session. Outstanding leases stay valid until released, after
// which their sessions are closed instead of being returned to the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	var idle []*entry
	for _, e := range p.entries {
		if !e.inUse {
			idle = append(idle, e)
		}
	}
	for _, e := range idle {
		p.removeLocked(e)
	}
	p.mu.Unlock()

	ctx := context.Background()
	for _, e := range idle {
		p.teardown(ctx, e.browser, e.session, e.page)
	}
	p.logger.Info("session pool closed", "closed_sessions", len(idle))
}
