package dcap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
)

// sendQueueDepth bounds how many serialized datagrams may wait for the
// sender goroutine before producers start dropping.
const sendQueueDepth = 256

// multicastTTL keeps multicast telemetry on the local segment and one hop
// beyond it.
const multicastTTL = 2

// Telemetry is what the request path sees. The UDP emitter implements it;
// Nop stands in when telemetry is disabled.
type Telemetry interface {
	EmitPerf(PerfRecord)
	EmitDiscovery(ToolAdvert, Connector)
}

// Nop discards all records.
type Nop struct{}

func (Nop) EmitPerf(PerfRecord) {}

func (Nop) EmitDiscovery(ToolAdvert, Connector) {}

// EmitterConfig configures the UDP emitter.
type EmitterConfig struct {
	// Addr is the destination host:port. A 239.0.0.0/8 host selects
	// multicast and sets the multicast TTL; anything else is plain
	// unicast.
	Addr     string
	ServerID string
	Logger   *slog.Logger
}

// Emitter serializes telemetry records and sends them as single UDP
// datagrams through one sender goroutine fed by a bounded queue.
// Producers never block: when the queue is full the record is dropped and
// counted.
type Emitter struct {
	conn     *net.UDPConn
	serverID string
	logger   *slog.Logger

	queue   chan []byte
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewEmitter dials the destination and starts the sender goroutine.
func NewEmitter(config EmitterConfig) (*Emitter, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr, err := net.ResolveUDPAddr("udp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry address %q: %w", config.Addr, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry socket: %w", err)
	}

	if addr.IP != nil && addr.IP.IsMulticast() {
		if err := ipv4.NewPacketConn(conn).SetMulticastTTL(multicastTTL); err != nil {
			logger.Warn("failed to set multicast TTL, continuing with kernel default", "error", err)
		}
	}

	e := &Emitter{
		conn:     conn,
		serverID: config.ServerID,
		logger:   logger,
		queue:    make(chan []byte, sendQueueDepth),
		done:     make(chan struct{}),
	}
	go e.sendLoop()
	return e, nil
}

// EmitPerf queues one perf_update record.
func (e *Emitter) EmitPerf(rec PerfRecord) {
	e.enqueue(rec.wire(e.serverID, time.Now()))
}

// EmitDiscovery queues one semantic_discover record for a tool.
func (e *Emitter) EmitDiscovery(tool ToolAdvert, connector Connector) {
	e.enqueue(tool.wire(e.serverID, connector.wire(), time.Now()))
}

// Dropped reports how many records were discarded because the queue was
// full or the payload exceeded the hard size cap.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close stops the sender and releases the socket. Queued records are
// flushed first.
func (e *Emitter) Close() {
	e.closeOnce.Do(func() {
		close(e.queue)
		<-e.done
		e.conn.Close()
	})
}

func (e *Emitter) enqueue(record map[string]interface{}) {
	payload, ok := e.capped(record)
	if !ok {
		return
	}
	select {
	case e.queue <- payload:
	default:
		e.dropped.Add(1)
	}
}

// capped serializes the record and enforces the datagram size rule: over
// the preferred bound the argument context is blanked; over the hard cap
// the record is dropped.
func (e *Emitter) capped(record map[string]interface{}) ([]byte, bool) {
	payload, err := json.Marshal(record)
	if err != nil {
		e.dropped.Add(1)
		e.logger.Warn("telemetry record not serializable", "error", err)
		return nil, false
	}
	if len(payload) <= PreferredMaxBytes {
		return payload, true
	}

	if ctx, ok := record["ctx"].(map[string]interface{}); ok {
		ctx["args"] = map[string]interface{}{}
		if payload, err = json.Marshal(record); err == nil && len(payload) <= PreferredMaxBytes {
			return payload, true
		}
	}
	if len(payload) <= HardMaxBytes {
		return payload, true
	}

	e.dropped.Add(1)
	e.logger.Warn("telemetry record exceeds datagram cap, dropping",
		"type", record["t"], "bytes", len(payload))
	return nil, false
}

func (e *Emitter) sendLoop() {
	defer close(e.done)
	for payload := range e.queue {
		if _, err := e.conn.Write(payload); err != nil {
			e.dropped.Add(1)
		}
	}
}
