package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Vector store Prometheus metrics.
var (
	VectorStoreBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "podcasts",
			Name:      "vectorstore_batches_total",
			Help:      "Vector store write batches by operation and status",
		},
		[]string{"op", "status"}, // op: insert / delete
	)

	VectorStoreBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "podcasts",
			Name:      "vectorstore_batch_size",
			Help:      "Number of items per vector store write batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"op"},
	)

	VectorStoreIndexAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "podcasts",
			Name:      "vectorstore_index_attempts_total",
			Help:      "Index bootstrap attempts by algorithm and result",
		},
		[]string{"algorithm", "result"}, // result: created / exists / rejected / error
	)

	VectorStoreQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "podcasts",
			Name:      "vectorstore_query_duration_seconds",
			Help:      "KNN query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend", "status"},
	)
)

var registerVectorStoreOnce sync.Once

// RegisterVectorStoreMetrics registers Prometheus vector store metrics. Must be called from main.
func RegisterVectorStoreMetrics() {
	registerVectorStoreOnce.Do(func() {
		prometheus.MustRegister(VectorStoreBatchesTotal)
		prometheus.MustRegister(VectorStoreBatchSize)
		prometheus.MustRegister(VectorStoreIndexAttemptsTotal)
		prometheus.MustRegister(VectorStoreQueryDuration)
	})
}

// BatchObserver records write batches for one operation. A nil observer is a no-op.
type BatchObserver struct {
	op    string
	total *prometheus.CounterVec
	sizes *prometheus.HistogramVec
}

// NewBatchObserver binds the vector store batch metrics to op.
func NewBatchObserver(op string) *BatchObserver {
	return &BatchObserver{op: op, total: VectorStoreBatchesTotal, sizes: VectorStoreBatchSize}
}

// Observe records one batch of n items.
func (o *BatchObserver) Observe(n int, err error) {
	if o == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.total.WithLabelValues(o.op, status).Inc()
	o.sizes.WithLabelValues(o.op).Observe(float64(n))
}
