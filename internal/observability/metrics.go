package observability

import (
	"sync"
	"time"
)

// Metrics is the process-wide counter registry behind /metricsz. It tracks
// the pipeline's congestion and failure signals: queue admission, boundary
// decisions, extraction task outcomes, oracle calls and retrieval latency.
type Metrics struct {
	mu sync.RWMutex

	queueDelivered int64
	queueRejected  int64
	queueFetched   int64

	memorizeRequests   int64
	boundariesDetected int64
	messagesBuffered   int64

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64

	llmCalls       int64
	llmErrors      int64
	embedCalls     int64
	embedErrors    int64
	embedFallbacks int64

	retrievals          int64
	retrievalErrors     int64
	retrievalLatencySum time.Duration

	indexWriteLagged int64

	httpRequests int64
	httpErrors   int64
	httpInflight int64

	vectorOps        int64
	vectorOpErrors   int64
	vectorLatencySum time.Duration
}

var (
	currentMu sync.RWMutex
	current   *Metrics
)

func NewMetrics() *Metrics { return &Metrics{} }

// SetCurrent installs the process-wide registry. Call once from app wiring.
func SetCurrent(m *Metrics) {
	currentMu.Lock()
	current = m
	currentMu.Unlock()
}

func Current() *Metrics {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

func (m *Metrics) add(field *int64, n int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	*field += n
	m.mu.Unlock()
}

func (m *Metrics) ObserveQueueDelivered() {
	if m == nil {
		return
	}
	m.add(&m.queueDelivered, 1)
}
func (m *Metrics) ObserveQueueRejected() {
	if m == nil {
		return
	}
	m.add(&m.queueRejected, 1)
}
func (m *Metrics) ObserveQueueFetched(n int) {
	if m == nil {
		return
	}
	m.add(&m.queueFetched, int64(n))
}

func (m *Metrics) ObserveMemorize() {
	if m == nil {
		return
	}
	m.add(&m.memorizeRequests, 1)
}
func (m *Metrics) ObserveBoundary() {
	if m == nil {
		return
	}
	m.add(&m.boundariesDetected, 1)
}
func (m *Metrics) ObserveBuffered(n int) {
	if m == nil {
		return
	}
	m.add(&m.messagesBuffered, int64(n))
}
func (m *Metrics) ObserveTaskSubmitted() {
	if m == nil {
		return
	}
	m.add(&m.tasksSubmitted, 1)
}
func (m *Metrics) ObserveTaskCompleted() {
	if m == nil {
		return
	}
	m.add(&m.tasksCompleted, 1)
}
func (m *Metrics) ObserveTaskFailed() {
	if m == nil {
		return
	}
	m.add(&m.tasksFailed, 1)
}
func (m *Metrics) ObserveLLMCall(err bool) {
	if m == nil {
		return
	}
	m.add(&m.llmCalls, 1)
	if err {
		m.add(&m.llmErrors, 1)
	}
}
func (m *Metrics) ObserveEmbedCall(err bool) {
	if m == nil {
		return
	}
	m.add(&m.embedCalls, 1)
	if err {
		m.add(&m.embedErrors, 1)
	}
}
func (m *Metrics) ObserveEmbedFallback() {
	if m == nil {
		return
	}
	m.add(&m.embedFallbacks, 1)
}
func (m *Metrics) ObserveIndexWriteLagged() {
	if m == nil {
		return
	}
	m.add(&m.indexWriteLagged, 1)
}

func (m *Metrics) ObserveVectorStoreOperation(latency time.Duration, err bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.vectorOps++
	m.vectorLatencySum += latency
	if err {
		m.vectorOpErrors++
	}
	m.mu.Unlock()
}

func (m *Metrics) HTTPInflightInc() {
	if m == nil {
		return
	}
	m.add(&m.httpInflight, 1)
}
func (m *Metrics) HTTPInflightDec() {
	if m == nil {
		return
	}
	m.add(&m.httpInflight, -1)
}
func (m *Metrics) ObserveHTTP(status int) {
	if m == nil {
		return
	}
	m.add(&m.httpRequests, 1)
	if status >= 500 {
		m.add(&m.httpErrors, 1)
	}
}

func (m *Metrics) ObserveRetrieval(latency time.Duration, err bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.retrievals++
	m.retrievalLatencySum += latency
	if err {
		m.retrievalErrors++
	}
	m.mu.Unlock()
}

// Snapshot returns a flat map for the /metricsz JSON body.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	avgRetrievalMs := float64(0)
	if m.retrievals > 0 {
		avgRetrievalMs = float64(m.retrievalLatencySum.Milliseconds()) / float64(m.retrievals)
	}

	return map[string]any{
		"queue_delivered":          m.queueDelivered,
		"queue_rejected":           m.queueRejected,
		"queue_fetched":            m.queueFetched,
		"memorize_requests":        m.memorizeRequests,
		"boundaries_detected":      m.boundariesDetected,
		"messages_buffered":        m.messagesBuffered,
		"tasks_submitted":          m.tasksSubmitted,
		"tasks_completed":          m.tasksCompleted,
		"tasks_failed":             m.tasksFailed,
		"llm_calls":                m.llmCalls,
		"llm_errors":               m.llmErrors,
		"embed_calls":              m.embedCalls,
		"embed_errors":             m.embedErrors,
		"embed_zero_fallbacks":     m.embedFallbacks,
		"retrievals":               m.retrievals,
		"retrieval_errors":         m.retrievalErrors,
		"retrieval_avg_latency_ms": avgRetrievalMs,
		"index_writes_lagged":      m.indexWriteLagged,
		"http_requests":            m.httpRequests,
		"http_errors":              m.httpErrors,
		"http_inflight":            m.httpInflight,
		"vector_ops":               m.vectorOps,
		"vector_op_errors":         m.vectorOpErrors,
	}
}
