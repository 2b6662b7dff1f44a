package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		MessageTotal, ConsolidationTotal,
		JobDuration, JobTotal,
		AICallDuration, CacheFallbackTotal,
		WorkerBusy, QueueDepth,
	)
}

// MessageTotal 入站消息请求总数（按最终 status）
var MessageTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chatorch_message_total",
		Help: "入站消息请求总数（按状态）",
	},
	[]string{"status"}, // ai_processing_started | locked | no_new_messages | failed
)

// ConsolidationTotal 快速重发被合并进既有锁的次数
var ConsolidationTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chatorch_consolidation_total",
		Help: "消息合并（取消旧 Job 重新处理）总数",
	},
)

// JobDuration Job 执行耗时（秒）
var JobDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "chatorch_job_duration_seconds",
		Help:    "后台 AI Job 执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// JobTotal Job 总数（按终态）
var JobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chatorch_job_total",
		Help: "后台 Job 总数（按终态）",
	},
	[]string{"status"}, // completed | failed | cancelled
)

// AICallDuration 外部 AI 调用耗时（秒）
var AICallDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "chatorch_ai_call_duration_seconds",
		Help:    "外部 AI HTTP 调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// CacheFallbackTotal 主缓存后端不可用而走本地 fallback 的操作数
var CacheFallbackTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "chatorch_cache_fallback_total",
		Help: "缓存主后端失败后走本地 fallback 的操作总数",
	},
)

// WorkerBusy 当前正在执行 Job 的 worker 数
var WorkerBusy = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "chatorch_worker_busy",
		Help: "当前正在执行 Job 的 worker 数",
	},
)

// QueueDepth 当前 FIFO 队列中等待的 Job 数
var QueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "chatorch_queue_depth",
		Help: "当前等待执行的 Job 数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
