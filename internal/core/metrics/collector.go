package metrics

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-docmesh/internal/core/replication"
	"github.com/dep2p/go-docmesh/internal/core/storage"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/wire"
)

var logger = log.Logger("core/metrics")

const namespace = "docmesh"

// Collector 指标收集器
//
// 引擎回调在引擎 goroutine 上执行，存储失败回调可能来自持久化 goroutine，
// 所有字段都是并发安全的。
type Collector struct {
	received        *prometheus.CounterVec
	sent            *prometheus.CounterVec
	sendFailures    *prometheus.CounterVec
	openSessions    prometheus.Gauge
	pendingEdits    prometheus.Gauge
	replays         *prometheus.CounterVec
	replayed        prometheus.Counter
	rtt             prometheus.Histogram
	storageFailures *prometheus.CounterVec

	inRate  *RateMeter
	outRate *RateMeter

	totalIn      atomic.Int64
	totalOut     atomic.Int64
	invalid      atomic.Int64
	failures     atomic.Int64
	open         atomic.Int64
	pending      atomic.Int64
	replayCount  atomic.Int64
	storageFails atomic.Int64
	lastRTT      atomic.Int64
}

var _ replication.Observer = (*Collector)(nil)

// NewCollector 创建收集器并注册到 reg
func NewCollector(reg prometheus.Registerer, clk clock.Clock) *Collector {
	c := &Collector{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound replication messages by kind and outcome.",
		}, []string{"kind", "result"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound replication messages by kind, counted per session.",
		}, []string{"kind"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound messages that could not be queued to a session.",
		}, []string{"kind"}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Sessions currently in the Open state.",
		}),
		pendingEdits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_edits",
			Help:      "Edits waiting in the offline queue.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Offline queue replays by outcome.",
		}, []string{"result"}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_edits_total",
			Help:      "Offline edits processed by replays.",
		}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_seconds",
			Help:      "Ping/pong round trip time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Persistence write failures by backend.",
		}, []string{"backend"}),
		inRate:  NewRateMeter(clk),
		outRate: NewRateMeter(clk),
	}

	if reg != nil {
		reg.MustRegister(
			c.received, c.sent, c.sendFailures,
			c.openSessions, c.pendingEdits,
			c.replays, c.replayed, c.rtt,
			c.storageFailures,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "messages_in_per_second",
				Help:      "Inbound message rate over the last minute.",
			}, c.inRate.Rate),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "messages_out_per_second",
				Help:      "Outbound message rate over the last minute.",
			}, c.outRate.Rate),
		)
	}
	return c
}

// ============================================================================
//                              replication.Observer
// ============================================================================

// MessageReceived 记录入站消息
func (c *Collector) MessageReceived(kind wire.Kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	c.received.WithLabelValues(string(kind), result).Inc()
	c.totalIn.Add(1)
	c.inRate.Add(1)
	if result == replication.ResultInvalid {
		c.invalid.Add(1)
	}
}

// MessageSent 记录出站消息
func (c *Collector) MessageSent(kind wire.Kind, sent, failed int) {
	if sent > 0 {
		c.sent.WithLabelValues(string(kind)).Add(float64(sent))
		c.totalOut.Add(int64(sent))
		c.outRate.Add(int64(sent))
	}
	if failed > 0 {
		c.sendFailures.WithLabelValues(string(kind)).Add(float64(failed))
		c.failures.Add(int64(failed))
	}
}

// SessionsChanged 记录 Open 会话数
func (c *Collector) SessionsChanged(open int) {
	c.openSessions.Set(float64(open))
	c.open.Store(int64(open))
}

// QueueChanged 记录离线队列长度
func (c *Collector) QueueChanged(pending int) {
	c.pendingEdits.Set(float64(pending))
	c.pending.Store(int64(pending))
}

// ReplayCompleted 记录一次离线回放
func (c *Collector) ReplayCompleted(entries int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.replays.WithLabelValues(result).Inc()
	c.replayed.Add(float64(entries))
	c.replayCount.Add(1)
}

// RTTObserved 记录往返时间
func (c *Collector) RTTObserved(rtt time.Duration) {
	c.rtt.Observe(rtt.Seconds())
	c.lastRTT.Store(int64(rtt))
}

// ============================================================================
//                              storage.FailureHook
// ============================================================================

// Hook 返回可交给存储层的失败回调
func (c *Collector) Hook() storage.FailureHook {
	return c.StorageFailure
}

// StorageFailure 记录存储写入失败
func (c *Collector) StorageFailure(backend string, err error) {
	c.storageFailures.WithLabelValues(backend).Inc()
	c.storageFails.Add(1)
	logger.Debug("存储失败已计入指标", "backend", backend, "err", err)
}

// ============================================================================
//                              快照
// ============================================================================

// Stats 返回统计快照
func (c *Collector) Stats() Stats {
	return Stats{
		MessagesIn:      c.totalIn.Load(),
		MessagesOut:     c.totalOut.Load(),
		Invalid:         c.invalid.Load(),
		SendFailures:    c.failures.Load(),
		OpenSessions:    int(c.open.Load()),
		PendingEdits:    int(c.pending.Load()),
		Replays:         c.replayCount.Load(),
		StorageFailures: c.storageFails.Load(),
		LastRTT:         time.Duration(c.lastRTT.Load()),
		RateIn:          c.inRate.Rate(),
		RateOut:         c.outRate.Rate(),
	}
}
