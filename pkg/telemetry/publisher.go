// Package telemetry pushes feature records and camera status to an
// external collector over an outbound websocket. Delivery is best
// effort: when the collector is down or slow, messages are dropped
// rather than backing up into the capture path.
package telemetry

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frothvision/frothwatch/internal/config"
	"github.com/frothvision/frothwatch/internal/log"
	"github.com/frothvision/frothwatch/pkg/features"
	"github.com/frothvision/frothwatch/pkg/stream"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// envelope wraps every outbound message with its kind.
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publisher maintains one outbound websocket connection with
// reconnect and a bounded send queue.
type Publisher struct {
	url string
	out chan []byte

	stop chan struct{}
	done chan struct{}

	started atomic.Bool
	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewPublisher creates a publisher for the configured collector.
func NewPublisher(cfg config.Telemetry) *Publisher {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	return &Publisher{
		url:  cfg.URL,
		out:  make(chan []byte, size),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the connection loop.
func (p *Publisher) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run()
}

// Stop closes the connection loop and waits for it to finish.
func (p *Publisher) Stop() {
	if !p.started.Load() {
		return
	}
	close(p.stop)
	<-p.done
}

// Dropped returns the number of messages discarded because the queue
// was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Sent returns the number of messages delivered to the collector.
func (p *Publisher) Sent() uint64 {
	return p.sent.Load()
}

// HandleRecord enqueues a feature record. Satisfies
// analysis.RecordFunc.
func (p *Publisher) HandleRecord(rec features.Record) {
	p.enqueue("features", rec)
}

// HandleStatus enqueues a camera state transition. Satisfies
// stream.StatusConsumer.
func (p *Publisher) HandleStatus(cameraIndex int, st stream.Status) {
	payload := map[string]interface{}{
		"camera_index": cameraIndex,
		"state":        st.State.String(),
		"retry_count":  st.RetryCount,
	}
	if st.LastError != nil {
		payload["error"] = st.LastError.Error()
	}
	p.enqueue("status", payload)
}

func (p *Publisher) enqueue(kind string, data interface{}) {
	raw, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		log.Error("telemetry encode failed", "type", kind, "error", err)
		return
	}
	select {
	case p.out <- raw:
	default:
		p.dropped.Add(1)
	}
}

// run connects, pumps the queue, and reconnects with backoff until
// stopped.
func (p *Publisher) run() {
	defer close(p.done)

	backoff := initialBackoff
	for {
		conn, _, err := websocket.DefaultDialer.Dial(p.url, nil)
		if err != nil {
			log.Warn("telemetry connect failed", "url", p.url, "error", err)
			select {
			case <-p.stop:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		log.Info("telemetry connected", "url", p.url)
		backoff = initialBackoff

		if !p.pump(conn) {
			conn.Close()
			return
		}
		conn.Close()
	}
}

// pump writes queued messages until the connection breaks (returns
// true) or the publisher is stopped (returns false).
func (p *Publisher) pump(conn *websocket.Conn) bool {
	for {
		select {
		case <-p.stop:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return false
		case raw := <-p.out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				log.Warn("telemetry write failed, reconnecting", "error", err)
				return true
			}
			p.sent.Add(1)
		}
	}
}
