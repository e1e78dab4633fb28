package rcon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ernie/isle-tracker/internal/config"
	"github.com/ernie/isle-tracker/internal/domain"
	"github.com/ernie/isle-tracker/internal/snapshot"
)

var errNotConnected = errors.New("rcon not connected")

// Options tune the manager. Zero values take the defaults from config.
type Options struct {
	Dial            DialFunc
	MaxAttempts     int
	RetryDelay      time.Duration
	ConnectWait     time.Duration
	HealthInterval  time.Duration
	RefreshInterval time.Duration
	CacheTTL        time.Duration

	// Now and Sleep are replaced in tests
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig builds Options that dial the configured server
func OptionsFromConfig(cfg config.RconConfig) Options {
	return Options{
		Dial:            Dialer(cfg.Address(), cfg.ConnectTimeout, cfg.QuietWindow),
		MaxAttempts:     cfg.MaxAttempts,
		RetryDelay:      cfg.RetryDelay,
		ConnectWait:     cfg.ConnectWait,
		HealthInterval:  cfg.HealthInterval,
		RefreshInterval: cfg.RefreshInterval,
		CacheTTL:        cfg.CacheTTL,
	}
}

func (o *Options) applyDefaults() {
	d := config.Default().Rcon
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.ConnectWait <= 0 {
		o.ConnectWait = d.ConnectWait
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = d.HealthInterval
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = d.RefreshInterval
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.CacheTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Manager owns the single RCON connection to the game server. It reconnects
// on demand, serializes commands, and keeps a short-lived cache of the last
// good player and server snapshots to serve while the link is down.
type Manager struct {
	opts Options

	mu           sync.Mutex
	state        domain.ConnectionState
	transport    Transport
	attempts     int
	lastActivity time.Time
	connectDone  chan struct{} // non-nil while a connect sequence is running
	connectErr   error

	// cmdMu serializes frames on the socket; one request in flight at a time
	cmdMu sync.Mutex

	cacheMu   sync.RWMutex
	players   []domain.PlayerRecord
	playersAt time.Time
	server    *domain.ServerSnapshot
	serverAt  time.Time

	done     chan struct{}
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a disconnected manager. Call Start to run the background loops.
func NewManager(opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		opts:  opts,
		state: domain.StateDisconnected,
		done:  make(chan struct{}),
	}
}

// Start connects in the background and begins health checks and auto-refresh
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if _, err := m.Players(ctx); err != nil {
			log.Printf("RCON initial fetch failed: %v", err)
		}
	}()

	m.wg.Add(1)
	go m.healthLoop(ctx)

	m.wg.Add(1)
	go m.refreshLoop(ctx)
}

// Stop halts the background loops and closes the socket
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		log.Println("RCON manager: stopping...")
		close(m.done)
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()

		m.mu.Lock()
		t := m.transport
		m.transport = nil
		m.state = domain.StateDisconnected
		m.mu.Unlock()
		if t != nil {
			t.Close()
		}
		log.Println("RCON manager: shutdown complete")
	})
}

// State returns the current link state
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ensureConnected returns the live transport, connecting if needed. Only one
// connect sequence runs at a time; other callers wait for it, up to ConnectWait.
func (m *Manager) ensureConnected(ctx context.Context) (Transport, error) {
	m.mu.Lock()
	if m.state == domain.StateConnected && m.transport != nil {
		t := m.transport
		m.mu.Unlock()
		return t, nil
	}

	if ch := m.connectDone; ch != nil {
		m.mu.Unlock()
		return m.waitForConnect(ctx, ch)
	}

	ch := make(chan struct{})
	m.connectDone = ch
	m.state = domain.StateConnecting
	m.attempts = 0
	m.mu.Unlock()

	t, err := m.connectWithRetry(ctx)

	m.mu.Lock()
	if err == nil {
		m.transport = t
		m.state = domain.StateConnected
		m.lastActivity = m.opts.Now()
	} else {
		m.state = domain.StateDegraded
	}
	m.connectErr = err
	m.connectDone = nil
	close(ch)
	m.mu.Unlock()

	return t, err
}

func (m *Manager) waitForConnect(ctx context.Context, ch <-chan struct{}) (Transport, error) {
	timer := time.NewTimer(m.opts.ConnectWait)
	defer timer.Stop()

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &domain.ConnectionError{Addr: "rcon", Err: fmt.Errorf("gave up waiting %v for in-flight connect", m.opts.ConnectWait)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == domain.StateConnected && m.transport != nil {
		return m.transport, nil
	}
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return nil, errNotConnected
}

func (m *Manager) connectWithRetry(ctx context.Context) (Transport, error) {
	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		m.mu.Lock()
		m.attempts = attempt
		m.mu.Unlock()

		t, err := m.opts.Dial(ctx)
		if err == nil {
			log.Printf("RCON connected (attempt %d/%d)", attempt, m.opts.MaxAttempts)
			return t, nil
		}
		lastErr = err
		log.Printf("RCON connect attempt %d/%d failed: %v", attempt, m.opts.MaxAttempts, err)

		if attempt < m.opts.MaxAttempts {
			if err := m.opts.Sleep(ctx, m.opts.RetryDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, &domain.ConnectionExhaustedError{Attempts: m.opts.MaxAttempts, Last: lastErr}
}

// markBroken discards t so the next command reconnects from scratch
func (m *Manager) markBroken(t Transport, cause error) {
	m.mu.Lock()
	current := m.transport == t
	if current {
		m.transport = nil
		m.state = domain.StateDisconnected
	}
	m.mu.Unlock()

	if current {
		log.Printf("RCON connection marked broken: %v", cause)
	}
	t.Close()
}

func (m *Manager) send(ctx context.Context, t Transport, cmd Command) ([]byte, error) {
	frame, err := Frame(cmd)
	if err != nil {
		return nil, err
	}

	m.cmdMu.Lock()
	resp, err := t.Send(ctx, frame)
	m.cmdMu.Unlock()

	if err != nil {
		m.markBroken(t, err)
		return nil, err
	}

	m.mu.Lock()
	m.lastActivity = m.opts.Now()
	m.mu.Unlock()
	return resp, nil
}

// command sends cmd, connecting first if needed
func (m *Manager) command(ctx context.Context, cmd Command) ([]byte, error) {
	if _, err := Frame(cmd); err != nil {
		return nil, err
	}
	t, err := m.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	return m.send(ctx, t, cmd)
}

// commandIfConnected sends cmd only over an already open link
func (m *Manager) commandIfConnected(ctx context.Context, cmd Command) ([]byte, error) {
	m.mu.Lock()
	t := m.transport
	connected := m.state == domain.StateConnected && t != nil
	m.mu.Unlock()

	if !connected {
		return nil, errNotConnected
	}
	return m.send(ctx, t, cmd)
}

func (m *Manager) storePlayers(raw []byte) []domain.PlayerRecord {
	players := snapshot.ParsePlayers(raw)
	now := m.opts.Now()

	m.cacheMu.Lock()
	m.players = players
	m.playersAt = now
	m.cacheMu.Unlock()
	return players
}

// Players fetches the live player list. When the live fetch fails the last
// good list is returned for up to CacheTTL, marked as cached with its age.
// Past that a CacheExhaustedError is returned.
func (m *Manager) Players(ctx context.Context) (domain.Result[[]domain.PlayerRecord], error) {
	raw, err := m.command(ctx, CmdPlayerInfo)
	if err == nil {
		players := m.storePlayers(raw)
		return domain.Result[[]domain.PlayerRecord]{Data: players, Provenance: domain.Live()}, nil
	}

	m.cacheMu.RLock()
	players, at := m.players, m.playersAt
	m.cacheMu.RUnlock()

	if at.IsZero() {
		return domain.Result[[]domain.PlayerRecord]{}, &domain.CacheExhaustedError{What: "player data", Err: err}
	}
	age := m.opts.Now().Sub(at)
	if age >= m.opts.CacheTTL {
		return domain.Result[[]domain.PlayerRecord]{}, &domain.CacheExhaustedError{What: "player data", Age: age, Err: err}
	}
	return domain.Result[[]domain.PlayerRecord]{Data: players, Provenance: domain.Cached(age)}, nil
}

// ServerInfo fetches server metadata with the same cache fallback as Players.
// The server cache has its own timestamp.
func (m *Manager) ServerInfo(ctx context.Context) (domain.Result[domain.ServerSnapshot], error) {
	raw, err := m.command(ctx, CmdServerInfo)
	if err == nil {
		info := snapshot.ParseServerInfo(raw)
		now := m.opts.Now()

		m.cacheMu.Lock()
		m.server = &info
		m.serverAt = now
		m.cacheMu.Unlock()
		return domain.Result[domain.ServerSnapshot]{Data: info, Provenance: domain.Live()}, nil
	}

	m.cacheMu.RLock()
	info, at := m.server, m.serverAt
	m.cacheMu.RUnlock()

	if info == nil {
		return domain.Result[domain.ServerSnapshot]{}, &domain.CacheExhaustedError{What: "server info", Err: err}
	}
	age := m.opts.Now().Sub(at)
	if age >= m.opts.CacheTTL {
		return domain.Result[domain.ServerSnapshot]{}, &domain.CacheExhaustedError{What: "server info", Age: age, Err: err}
	}
	return domain.Result[domain.ServerSnapshot]{Data: *info, Provenance: domain.Cached(age)}, nil
}

// FindPlayer looks up one live player by persistent ID
func (m *Manager) FindPlayer(ctx context.Context, playerID string) (domain.Result[domain.PlayerRecord], error) {
	res, err := m.Players(ctx)
	if err != nil {
		return domain.Result[domain.PlayerRecord]{}, err
	}
	for _, p := range res.Data {
		if p.PlayerID == playerID {
			return domain.Result[domain.PlayerRecord]{Data: p, Provenance: res.Provenance}, nil
		}
	}
	return domain.Result[domain.PlayerRecord]{}, fmt.Errorf("player %s: %w", playerID, domain.ErrNotFound)
}

// Exec sends a named command and returns the raw response text
func (m *Manager) Exec(ctx context.Context, name string) (string, error) {
	cmd := Command(name)
	raw, err := m.command(ctx, cmd)
	if err != nil {
		return "", err
	}
	if cmd == CmdPlayerInfo {
		m.storePlayers(raw)
	}
	return string(raw), nil
}

// Status reports the link state and cache freshness
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	st := domain.ConnectionStatus{
		State:      m.state,
		Connected:  m.state == domain.StateConnected,
		Connecting: m.state == domain.StateConnecting,
		Attempts:   m.attempts,
	}
	if !m.lastActivity.IsZero() {
		t := m.lastActivity
		st.LastActivity = &t
	}
	m.mu.Unlock()

	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	st.CachedCount = len(m.players)
	st.HasServer = m.server != nil
	if !m.playersAt.IsZero() {
		t := m.playersAt
		st.LastUpdate = &t
		st.CacheAge = m.opts.Now().Sub(m.playersAt)
		st.CacheValid = st.CacheAge < m.opts.CacheTTL
	}
	return st
}

// healthCheck sends a status frame over an open link. Failure discards the
// transport; the next request reconnects.
func (m *Manager) healthCheck(ctx context.Context) {
	if _, err := m.commandIfConnected(ctx, CmdStatus); err != nil && !errors.Is(err, errNotConnected) {
		log.Printf("RCON health check failed: %v", err)
	}
}

// refresh keeps the player cache warm while connected
func (m *Manager) refresh(ctx context.Context) {
	raw, err := m.commandIfConnected(ctx, CmdPlayerInfo)
	if err != nil {
		if !errors.Is(err, errNotConnected) {
			log.Printf("RCON auto-refresh failed: %v", err)
		}
		return
	}
	m.storePlayers(raw)
}

// healthLoop periodically checks the link
func (m *Manager) healthLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.healthCheck(ctx)
		}
	}
}

// refreshLoop periodically refreshes the player cache
func (m *Manager) refreshLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}
