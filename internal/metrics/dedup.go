package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DedupBatchTotal 按模式与结果统计去重批次。
	DedupBatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hirehub",
			Subsystem: "dedup",
			Name:      "batches_total",
			Help:      "去重批次处理总数。",
		},
		[]string{"mode", "outcome"},
	)

	// DedupDuplicatesDetected 统计上传时检测到的冲突数量。
	DedupDuplicatesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hirehub",
			Subsystem: "dedup",
			Name:      "duplicates_detected_total",
			Help:      "上传时检测到的重复 CV 数量。",
		},
	)
)
