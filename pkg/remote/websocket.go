package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-redactor/pkg/log"
	"github.com/menta2k/image-redactor/pkg/types"
)

// WSDetector keeps one websocket open to the inference server. Requests are
// serialized over the connection. A broken connection is dropped and
// re-dialled on the next call.
type WSDetector struct {
	url    string
	params types.Params
	logger logrus.FieldLogger

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewWebSocket creates a detector for the ws:// or wss:// endpoint at url.
// The first connection is made lazily.
func NewWebSocket(url string, params types.Params, timeout time.Duration, logger logrus.FieldLogger) (*WSDetector, error) {
	if url == "" {
		return nil, fmt.Errorf("detector url is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &WSDetector{
		url:          url,
		params:       params,
		logger:       logger,
		pingInterval: 30 * time.Second,
		readTimeout:  timeout,
		writeTimeout: 10 * time.Second,
	}, nil
}

// IsConnected reports whether a connection is currently open
func (d *WSDetector) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Detect sends img over the connection and waits for the answer
func (d *WSDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	payload, err := newRequest(img, d.params)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		if err := d.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	conn := d.conn

	writeDeadline := time.Now().Add(d.writeTimeout)
	readDeadline := time.Now().Add(d.readTimeout)
	if dl, ok := ctx.Deadline(); ok {
		if dl.Before(writeDeadline) {
			writeDeadline = dl
		}
		if dl.Before(readDeadline) {
			readDeadline = dl
		}
	}

	_ = conn.SetWriteDeadline(writeDeadline)
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		d.dropLocked()
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	_ = conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		d.dropLocked()
		return nil, fmt.Errorf("error reading detection message: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	var result Response
	if err := json.Unmarshal(message, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling detection response: %w", err)
	}

	return result.toDetections()
}

// Close closes the connection and stops the keep-alive
func (d *WSDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropLocked()
	return nil
}

func (d *WSDetector) connectLocked(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(d.writeTimeout))
		if err != nil {
			d.logger.WithError(err).Warn("error sending pong")
		}
		return nil
	})

	d.conn = conn
	d.stop = make(chan struct{})
	go d.keepAlive(conn, d.stop)

	d.logger.WithField("url", d.url).Info("connected to detection service")
	return nil
}

func (d *WSDetector) dropLocked() {
	if d.conn == nil {
		return
	}
	close(d.stop)
	_ = d.conn.Close()
	d.conn = nil
	d.stop = nil
}

func (d *WSDetector) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(d.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(d.writeTimeout))
			if err == nil {
				continue
			}

			d.logger.WithError(err).Warn("ping failed, marking connection as dead")
			d.mu.Lock()
			if d.conn == conn {
				d.dropLocked()
			}
			d.mu.Unlock()
			return
		}
	}
}
