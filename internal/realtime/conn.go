package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/praxishq/dashboard-core/internal/observability/metrics"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

// State of the realtime channel.
type State string

const (
	StateConnecting State = "connecting"
	StateDegraded   State = "degraded"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	URL       string
	Header    http.Header
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Dialer    *websocket.Dialer
	Logger    *logging.Logger
	Metrics   *metrics.SyncMetrics
}

// Manager owns the process-wide socket. It dials, reads frames into the
// event channel, reconnects with backoff, and holds outbound intents
// until the server has acknowledged the channel. The connection counts
// as open only after the first server frame arrives; until then it is
// degraded and intents queue. gorilla permits one concurrent writer per
// connection, so every data frame goes out through a single writer
// goroutine draining the intent queue.
type Manager struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *logging.Logger
	metrics   *metrics.SyncMetrics

	events chan Envelope
	states chan State
	kick   chan struct{}

	mu    sync.Mutex
	state State
	queue []Intent
}

// NewManager creates a manager for the given socket URL.
func NewManager(cfg ManagerConfig) *Manager {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < baseDelay {
		maxDelay = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		url:       cfg.URL,
		header:    cfg.Header,
		dialer:    dialer,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		logger:    logger,
		metrics:   cfg.Metrics,
		events:    make(chan Envelope, 256),
		states:    make(chan State, 32),
		kick:      make(chan struct{}, 1),
		state:     StateClosed,
	}
}

// Events streams decoded server frames.
func (m *Manager) Events() <-chan Envelope { return m.events }

// States streams channel-state transitions.
func (m *Manager) States() <-chan State { return m.states }

// State reports the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send queues the intent and wakes the writer. The writer only drains
// the queue while the channel is open, so intents sent during degraded
// or closed periods wait for the next open transition. Never blocks on
// the network result.
func (m *Manager) Send(intent Intent) {
	m.mu.Lock()
	m.queue = append(m.queue, intent)
	queued := len(m.queue)
	m.mu.Unlock()
	m.logger.Debug("intent queued", "event", intent.Event, "queued", queued)
	m.kickWriter()
}

func (m *Manager) kickWriter() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run dials and serves the socket until ctx is done, reconnecting with
// exponential backoff after every drop. A connection that reached open
// resets the backoff, so a drop after a healthy session redials at the
// base delay.
func (m *Manager) Run(ctx context.Context) {
	delay := m.baseDelay
	for {
		if ctx.Err() != nil {
			m.setState(StateClosed)
			return
		}
		m.setState(StateConnecting)
		conn, resp, err := m.dialer.DialContext(ctx, m.url, m.header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			m.metrics.ObserveReconnect()
			m.logger.Warn("realtime dial failed", "url", m.url, "error", err, "retry_in", delay)
			m.setState(StateClosed)
			if !sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, m.maxDelay)
			continue
		}

		opened := m.serve(ctx, conn)
		_ = conn.Close()
		m.setState(StateClosed)
		if ctx.Err() != nil {
			return
		}
		m.metrics.ObserveReconnect()
		if opened {
			delay = m.baseDelay
		}
		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, m.maxDelay)
	}
}

// serve reads frames until the connection drops. The first frame from
// the server promotes degraded to open, which wakes the writer to flush
// queued intents. Reports whether the connection ever reached open.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) bool {
	m.mu.Lock()
	m.state = StateDegraded
	m.mu.Unlock()
	m.publishState(StateDegraded)
	m.logger.Info("realtime channel connected, awaiting server ack", "url", m.url)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go m.pingLoop(ctx, conn, stop)
	go m.writeLoop(ctx, conn, stop)

	opened := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.logger.Warn("realtime channel dropped", "error", err)
			return opened
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if m.State() == StateDegraded {
			m.promote()
			opened = true
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			m.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		select {
		case m.events <- env:
		case <-ctx.Done():
			return opened
		}
	}
}

// promote marks the channel open and wakes the writer so queued intents
// flush in order.
func (m *Manager) promote() {
	m.mu.Lock()
	m.state = StateOpen
	pending := len(m.queue)
	m.mu.Unlock()
	m.publishState(StateOpen)
	m.logger.Info("realtime channel open", "flushing", pending)
	m.kickWriter()
}

// writeLoop is the connection's only writer of data frames. It drains
// the queue on every wake-up and exits with the connection.
func (m *Manager) writeLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-m.kick:
			if !m.flush(conn) {
				return
			}
		}
	}
}

// flush writes queued intents while the channel is open. A failed write
// requeues the intent and tears the connection down; the next open
// transition retries it.
func (m *Manager) flush(conn *websocket.Conn) bool {
	for {
		m.mu.Lock()
		if m.state != StateOpen || len(m.queue) == 0 {
			m.mu.Unlock()
			return true
		}
		intent := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		if err := conn.WriteJSON(intent); err != nil {
			m.logger.Warn("intent write failed, requeued", "event", intent.Event, "error", err)
			m.mu.Lock()
			m.queue = append([]Intent{intent}, m.queue...)
			m.mu.Unlock()
			_ = conn.Close()
			return false
		}
	}
}

func (m *Manager) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
	m.publishState(s)
}

// publishState never blocks; a slow consumer loses the oldest pending
// transition, which is safe because consumers only care about the latest.
func (m *Manager) publishState(s State) {
	select {
	case m.states <- s:
	default:
		select {
		case <-m.states:
		default:
		}
		select {
		case m.states <- s:
		default:
		}
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
