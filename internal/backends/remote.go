package backends

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qfitlab/qfit/internal/events"
	"github.com/qfitlab/qfit/internal/quantum"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	// WebSocket connection constants
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second
	callTimeout = 60 * time.Second

	// Reconnection constants
	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// Frame types of the remote execution protocol. Every request carries a
// correlation ID; the response echoes it back. Progress frames arrive
// unsolicited and carry only a job ID.
const (
	frameHello    = "hello"
	frameSubmit   = "submit"
	frameStatus   = "status"
	frameResult   = "result"
	frameCancel   = "cancel"
	frameError    = "error"
	frameProgress = "progress"
)

type wsFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type submitPayload struct {
	Circuit *quantum.Circuit `json:"circuit"`
}

type jobStatePayload struct {
	JobID  string           `json:"job_id"`
	Status JobStatus        `json:"status,omitempty"`
	Result *ExecutionResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type progressPayload struct {
	JobID     string `json:"job_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

type capabilitiesPayload struct {
	Name      string `json:"name"`
	NumQubits int    `json:"num_qubits"`
}

// RemoteBackend talks to an external simulation service over WebSocket.
// Requests are correlated by ID so multiple in-flight calls can share one
// connection; progress frames are republished on the event bus.
type RemoteBackend struct {
	// Connection
	url        string
	httpClient *http.Client // Forced to HTTP/1.1 for the upgrade handshake
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	// Dependencies
	eventBus *events.Bus
	log      zerolog.Logger

	// State
	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
	numQubits    int

	// In-flight request correlation
	pending   map[string]chan *wsFrame
	pendingMu sync.Mutex
}

// createHTTP1Client creates an HTTP client that forces HTTP/1.1.
// TLS-terminating proxies tend to negotiate HTTP/2 via ALPN, but the
// WebSocket upgrade handshake requires HTTP/1.1.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig: &tls.Config{
				NextProtos: []string{"http/1.1"},
			},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewRemoteBackend creates a remote backend client. numQubits is the
// assumed capacity until the service reports its own in the hello exchange.
func NewRemoteBackend(url string, numQubits int, eventBus *events.Bus, log zerolog.Logger) *RemoteBackend {
	if numQubits <= 0 {
		numQubits = quantum.MaxQubits
	}
	return &RemoteBackend{
		url:        url,
		httpClient: createHTTP1Client(),
		eventBus:   eventBus,
		log:        log.With().Str("component", "remote_backend").Logger(),
		stopChan:   make(chan struct{}),
		numQubits:  numQubits,
		pending:    make(map[string]chan *wsFrame),
	}
}

func (rb *RemoteBackend) Name() string { return "remote" }

func (rb *RemoteBackend) NumQubits() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.numQubits
}

// Start establishes the WebSocket connection and begins the read loop.
func (rb *RemoteBackend) Start() error {
	rb.log.Info().Str("url", rb.url).Msg("Starting remote backend client")

	if err := rb.Connect(); err != nil {
		rb.log.Warn().Err(err).Msg("Initial connection failed, will retry in background")
		go rb.reconnectLoop()
		return err
	}

	rb.mu.RLock()
	ctx := rb.connCtx
	rb.mu.RUnlock()
	go rb.readMessages(ctx)

	rb.log.Info().Msg("Remote backend client started")
	return nil
}

// Stop shuts the client down and abandons any in-flight requests.
func (rb *RemoteBackend) Stop() error {
	rb.mu.Lock()
	if rb.stopped {
		rb.mu.Unlock()
		return nil
	}
	rb.stopped = true
	rb.mu.Unlock()

	rb.log.Info().Msg("Stopping remote backend client")
	close(rb.stopChan)
	return rb.Disconnect()
}

// Connect dials the service and performs the hello exchange.
func (rb *RemoteBackend) Connect() error {
	if err := rb.connect(); err != nil {
		return err
	}

	// Emitted outside the lock: bus handlers run synchronously and may call
	// back into the backend.
	rb.emitStatus(true)
	rb.log.Info().Msg("Connected to remote execution service")
	return nil
}

func (rb *RemoteBackend) connect() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.log.Info().Str("url", rb.url).Msg("Connecting to remote execution service")

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, rb.url, &websocket.DialOptions{
		HTTPClient: rb.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial WebSocket: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	rb.conn = conn
	rb.connCtx = connCtx
	rb.cancelFunc = connCancel
	rb.connected = true

	if err := rb.sendHello(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "hello failed")
		rb.conn = nil
		rb.connCtx = nil
		rb.cancelFunc = nil
		rb.connected = false
		return fmt.Errorf("hello exchange failed: %w", err)
	}

	return nil
}

// Disconnect closes the connection and cancels pending reads.
func (rb *RemoteBackend) Disconnect() error {
	rb.mu.Lock()
	if rb.conn == nil {
		rb.mu.Unlock()
		return nil
	}

	rb.log.Info().Msg("Disconnecting from remote execution service")

	if rb.cancelFunc != nil {
		rb.cancelFunc()
		rb.cancelFunc = nil
	}

	err := rb.conn.Close(websocket.StatusNormalClosure, "")
	rb.conn = nil
	rb.connCtx = nil
	rb.connected = false
	rb.mu.Unlock()

	rb.emitStatus(false)

	if err != nil {
		return fmt.Errorf("error closing WebSocket: %w", err)
	}
	return nil
}

// sendHello announces the client. The service replies asynchronously with a
// capabilities frame handled in the read loop. Caller holds rb.mu.
func (rb *RemoteBackend) sendHello(ctx context.Context) error {
	frame := wsFrame{Type: frameHello}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal hello frame: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	if err := rb.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send hello frame: %w", err)
	}
	return nil
}

// Submit sends the circuit and returns the job ID assigned by the service.
func (rb *RemoteBackend) Submit(ctx context.Context, circuit *quantum.Circuit) (string, error) {
	if circuit == nil {
		return "", fmt.Errorf("nil circuit")
	}
	if err := circuit.Validate(); err != nil {
		return "", fmt.Errorf("invalid circuit: %w", err)
	}

	payload, err := json.Marshal(submitPayload{Circuit: circuit})
	if err != nil {
		return "", fmt.Errorf("failed to marshal circuit: %w", err)
	}

	resp, err := rb.call(ctx, wsFrame{Type: frameSubmit, Payload: payload})
	if err != nil {
		return "", err
	}

	var state jobStatePayload
	if err := json.Unmarshal(resp.Payload, &state); err != nil {
		return "", fmt.Errorf("failed to parse submit response: %w", err)
	}
	if state.JobID == "" {
		return "", fmt.Errorf("submit response carried no job ID")
	}

	rb.log.Debug().
		Str("job_id", state.JobID).
		Int("num_qubits", circuit.NumQubits).
		Int("gates", len(circuit.Gates)).
		Msg("Circuit submitted to remote service")

	return state.JobID, nil
}

func (rb *RemoteBackend) Status(ctx context.Context, jobID string) (JobStatus, error) {
	state, err := rb.jobCall(ctx, frameStatus, jobID)
	if err != nil {
		return "", err
	}
	return state.Status, nil
}

func (rb *RemoteBackend) Results(ctx context.Context, jobID string) (*ExecutionResult, error) {
	state, err := rb.jobCall(ctx, frameResult, jobID)
	if err != nil {
		return nil, err
	}

	switch state.Status {
	case StatusCompleted:
		if state.Result == nil {
			return nil, fmt.Errorf("completed job %s carried no result", jobID)
		}
		return state.Result, nil
	case StatusFailed:
		return nil, fmt.Errorf("job failed: %s", state.Error)
	case StatusCancelled:
		return nil, fmt.Errorf("job was cancelled")
	default:
		return nil, ErrJobRunning
	}
}

func (rb *RemoteBackend) Cancel(ctx context.Context, jobID string) error {
	_, err := rb.jobCall(ctx, frameCancel, jobID)
	return err
}

// jobCall performs a request that addresses an existing job.
func (rb *RemoteBackend) jobCall(ctx context.Context, frameType, jobID string) (*jobStatePayload, error) {
	payload, err := json.Marshal(jobStatePayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", frameType, err)
	}

	resp, err := rb.call(ctx, wsFrame{Type: frameType, Payload: payload})
	if err != nil {
		return nil, err
	}

	var state jobStatePayload
	if err := json.Unmarshal(resp.Payload, &state); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", frameType, err)
	}
	return &state, nil
}

// call writes a frame and blocks until the correlated response arrives.
func (rb *RemoteBackend) call(ctx context.Context, frame wsFrame) (*wsFrame, error) {
	rb.mu.RLock()
	conn := rb.conn
	connected := rb.connected
	rb.mu.RUnlock()

	if !connected || conn == nil {
		return nil, ErrNotConnected
	}

	frame.ID = uuid.New().String()

	ch := make(chan *wsFrame, 1)
	rb.pendingMu.Lock()
	rb.pending[frame.ID] = ch
	rb.pendingMu.Unlock()
	defer func() {
		rb.pendingMu.Lock()
		delete(rb.pending, frame.ID)
		rb.pendingMu.Unlock()
	}()

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", frame.Type, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("failed to send %s frame: %w", frame.Type, err)
	}

	select {
	case resp := <-ch:
		if resp.Type == frameError {
			return nil, fmt.Errorf("remote service error: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(callTimeout):
		return nil, fmt.Errorf("timed out waiting for %s response", frame.Type)
	case <-rb.stopChan:
		return nil, ErrNotConnected
	}
}

// readMessages continuously reads frames from the connection.
func (rb *RemoteBackend) readMessages(ctx context.Context) {
	defer func() {
		rb.log.Info().Msg("Read loop stopped")
		rb.mu.RLock()
		stopped := rb.stopped
		rb.mu.RUnlock()
		if !stopped {
			go rb.reconnectLoop()
		}
	}()

	for {
		select {
		case <-rb.stopChan:
			return
		case <-ctx.Done():
			rb.log.Debug().Msg("Read loop context cancelled")
			return
		default:
		}

		rb.mu.RLock()
		conn := rb.conn
		rb.mu.RUnlock()

		if conn == nil {
			rb.log.Warn().Msg("Connection is nil, stopping read loop")
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				rb.log.Info().Int("status", int(closeStatus)).Msg("WebSocket closed normally")
			} else if ctx.Err() != nil {
				rb.log.Debug().Msg("Read cancelled by context")
			} else {
				rb.log.Error().Err(err).Msg("Unexpected WebSocket read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			rb.log.Debug().Int("type", int(msgType)).Msg("Ignoring non-text message")
			continue
		}

		if err := rb.handleFrame(message); err != nil {
			rb.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle frame")
		}
	}
}

// handleFrame routes a frame either to the pending call that requested it or
// to the unsolicited-frame handlers.
func (rb *RemoteBackend) handleFrame(message []byte) error {
	var frame wsFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return fmt.Errorf("failed to parse frame: %w", err)
	}

	if frame.ID != "" {
		rb.pendingMu.Lock()
		ch, exists := rb.pending[frame.ID]
		rb.pendingMu.Unlock()
		if exists {
			ch <- &frame
			return nil
		}
		rb.log.Debug().Str("id", frame.ID).Str("type", frame.Type).Msg("Response for abandoned request")
		return nil
	}

	switch frame.Type {
	case frameProgress:
		return rb.handleProgress(frame.Payload)
	case frameHello:
		return rb.handleCapabilities(frame.Payload)
	default:
		rb.log.Debug().Str("type", frame.Type).Msg("Ignoring unsolicited frame")
		return nil
	}
}

// handleProgress republishes shot progress on the event bus.
func (rb *RemoteBackend) handleProgress(payload json.RawMessage) error {
	var progress progressPayload
	if err := json.Unmarshal(payload, &progress); err != nil {
		return fmt.Errorf("failed to parse progress frame: %w", err)
	}

	if rb.eventBus != nil {
		rb.eventBus.EmitData("remote_backend", &events.ShotProgressData{
			RunID:     progress.JobID,
			Backend:   rb.Name(),
			Completed: progress.Completed,
			Total:     progress.Total,
		})
	}
	return nil
}

// handleCapabilities records the capacity the service reports about itself.
func (rb *RemoteBackend) handleCapabilities(payload json.RawMessage) error {
	var caps capabilitiesPayload
	if err := json.Unmarshal(payload, &caps); err != nil {
		return fmt.Errorf("failed to parse capabilities frame: %w", err)
	}

	if caps.NumQubits > 0 {
		rb.mu.Lock()
		rb.numQubits = caps.NumQubits
		rb.mu.Unlock()
	}

	rb.log.Info().
		Str("service", caps.Name).
		Int("num_qubits", caps.NumQubits).
		Msg("Remote service capabilities received")
	return nil
}

func (rb *RemoteBackend) emitStatus(connected bool) {
	if rb.eventBus == nil {
		return
	}
	rb.eventBus.EmitData("remote_backend", &events.BackendStatusChangedData{
		Backend:   rb.Name(),
		Connected: connected,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// reconnectLoop handles automatic reconnection with exponential backoff.
func (rb *RemoteBackend) reconnectLoop() {
	rb.mu.Lock()
	if rb.reconnecting || rb.stopped {
		rb.mu.Unlock()
		return
	}
	rb.reconnecting = true
	rb.mu.Unlock()

	defer func() {
		rb.mu.Lock()
		rb.reconnecting = false
		rb.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-rb.stopChan:
			rb.log.Info().Msg("Reconnection loop stopped")
			return
		default:
		}

		rb.mu.RLock()
		stopped := rb.stopped
		rb.mu.RUnlock()
		if stopped {
			return
		}

		attempt++
		delay := rb.calculateBackoff(attempt)

		if attempt <= maxReconnectAttempts {
			rb.log.Info().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Attempting to reconnect")
		} else {
			rb.log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Reconnection attempt (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-rb.stopChan:
			return
		}

		if err := rb.Connect(); err != nil {
			rb.log.Error().Err(err).Int("attempt", attempt).Msg("Reconnection failed")
			continue
		}

		rb.log.Info().Int("attempt", attempt).Msg("Reconnected to remote execution service")

		rb.mu.RLock()
		ctx := rb.connCtx
		rb.mu.RUnlock()
		go rb.readMessages(ctx)
		return
	}
}

// calculateBackoff returns the exponential backoff delay for an attempt.
func (rb *RemoteBackend) calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// IsConnected reports the current connection state.
func (rb *RemoteBackend) IsConnected() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.connected
}
