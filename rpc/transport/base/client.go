package base

import (
	"fmt"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/ValentinKolb/andx/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"math/rand"
	"net"
	"sync"
	"time"
)

var Logger = logger.GetLogger(common.LoggerTransport)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// frameTransport implements transport.IFrameTransport on top of a net.Conn.
// A single pump goroutine reads frames and hands them over an unbuffered
// channel, so a reader that gives up never drops a frame.
type frameTransport struct {
	conn         net.Conn
	maxFrameSize int

	writeMu sync.Mutex // serializes writes on the connection

	frames  chan []byte   // frames read by the pump
	failed  chan struct{} // closed when the pump stopped on a read error
	readErr error         // set before failed is closed

	stopCh    chan struct{} // closed by Close
	closeOnce sync.Once
}

// -----------------------------------------------------------
// Transport Factory Methods (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewFrameTransport wraps an established connection. Frames larger than
// maxFrameSize (0 = common.DefaultMaxFrameSize) fail the read side.
func NewFrameTransport(conn net.Conn, maxFrameSize int) transport.IFrameTransport {
	if maxFrameSize <= 0 {
		maxFrameSize = common.DefaultMaxFrameSize
	}

	t := &frameTransport{
		conn:         conn,
		maxFrameSize: maxFrameSize,
		frames:       make(chan []byte),
		failed:       make(chan struct{}),
		stopCh:       make(chan struct{}),
	}
	go t.pump()
	return t
}

// Dial connects to the configured endpoint with the given connector. Failed
// attempts are retried up to RetryCount times with exponential backoff.
func Dial(connector IClientConnector, config common.ClientConfig) (transport.IFrameTransport, error) {
	if config.Transport.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint provided")
	}

	timeout := time.Duration(config.Transport.ConnectTimeoutSecond) * time.Second

	// We always try at least once
	maxRetries := config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn, err := connect(connector, config, timeout)
		if err == nil {
			Logger.Infof("Connected to %s using %s transport", config.Transport.Endpoint, connector.GetName())
			return NewFrameTransport(conn, config.Transport.MaxFrameSize), nil
		}

		lastErr = err
		Logger.Debugf("Connect attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", config.Transport.Endpoint, maxRetries, lastErr)
}

// connect establishes and upgrades a single connection
func connect(connector IClientConnector, config common.ClientConfig, timeout time.Duration) (net.Conn, error) {
	conn, err := connector.Connect(config.Transport.Endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Transport.Endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", config.Transport.Endpoint, err)
	}
	return conn, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IFrameTransport)
// --------------------------------------------------------------------------

func (t *frameTransport) WriteFrame(buf []byte) error {
	select {
	case <-t.stopCh:
		return transport.ErrClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return writeFrame(t.conn, buf)
}

func (t *frameTransport) ReadFrame(cancel <-chan struct{}) ([]byte, error) {
	select {
	case data := <-t.frames:
		return data, nil
	case <-t.failed:
		return nil, t.readErr
	case <-cancel:
		return nil, transport.ErrReadCancelled
	case <-t.stopCh:
		return nil, transport.ErrClosed
	}
}

func (t *frameTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopCh)
		err = t.conn.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// pump reads frames until the connection fails or the transport is closed
func (t *frameTransport) pump() {
	for {
		data, err := readFrame(t.conn, t.maxFrameSize)
		if err != nil {
			select {
			case <-t.stopCh:
				Logger.Debugf("reader stopped after close: %v", err)
			default:
				Logger.Warningf("read failed on %s: %v", t.conn.RemoteAddr(), err)
			}
			t.readErr = err
			close(t.failed)
			return
		}

		select {
		case t.frames <- data:
		case <-t.stopCh:
			return
		}
	}
}
