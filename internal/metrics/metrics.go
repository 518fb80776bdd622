package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
)

// Ledger regroupe les compteurs du ledger de commandes. Chaque instance a ses
// propres collecteurs ; Register les expose sur un registre.
type Ledger struct {
	TransactionAttempts  prometheus.Counter
	TransactionConflicts prometheus.Counter
	OrdersCreated        prometheus.Counter
	OrderFailures        *prometheus.CounterVec
	Compensations        *prometheus.CounterVec
	OrdersSwept          prometheus.Counter
}

func NewLedger() *Ledger {
	return &Ledger{
		TransactionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_transaction_attempts_total",
			Help: "Store transaction attempts made by the order ledger",
		}),
		TransactionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_transaction_conflicts_total",
			Help: "Store transactions rejected because a read document changed",
		}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_orders_created_total",
			Help: "Orders committed",
		}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_order_failures_total",
			Help: "Order creations rejected, by reason",
		}, []string{"reason"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_compensations_total",
			Help: "Stock compensations run after a status change, by result",
		}, []string{"result"}),
		OrdersSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_orders_swept_total",
			Help: "Completed orders removed by the retention sweep",
		}),
	}
}

func (l *Ledger) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		l.TransactionAttempts,
		l.TransactionConflicts,
		l.OrdersCreated,
		l.OrderFailures,
		l.Compensations,
		l.OrdersSwept,
	}
}

// Register enregistre les métriques HTTP et celles du ledger
func Register(reg prometheus.Registerer, l *Ledger) {
	reg.MustRegister(RequestCounter, RequestDurationHistogram)
	reg.MustRegister(l.Collectors()...)
}

// Middleware mesure chaque requête, étiquetée par route et non par URL brute
func Middleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		RequestCounter.WithLabelValues(serviceName, c.Request.Method, path, status).Inc()
		RequestDurationHistogram.WithLabelValues(serviceName, c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
