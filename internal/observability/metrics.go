package observability

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics provides basic in-memory counters for requests and chat traffic.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64

	messagesRelayed    atomic.Int64
	broadcastDelivered atomic.Int64
	broadcastFailed    atomic.Int64
	activeConnections  atomic.Int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordMessageRelayed counts one chat event accepted by the relay.
func (m *Metrics) RecordMessageRelayed() {
	if m == nil {
		return
	}
	m.messagesRelayed.Add(1)
}

// RecordBroadcast counts per-subscriber delivery outcomes for one fan-out.
func (m *Metrics) RecordBroadcast(delivered, failed int) {
	if m == nil {
		return
	}
	m.broadcastDelivered.Add(int64(delivered))
	m.broadcastFailed.Add(int64(failed))
}

// ConnectionOpened tracks a new realtime connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Add(1)
}

// ConnectionClosed tracks a realtime connection going away.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Add(-1)
}

// ActiveConnections returns the current realtime connection count.
func (m *Metrics) ActiveConnections() int64 {
	if m == nil {
		return 0
	}
	return m.activeConnections.Load()
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
