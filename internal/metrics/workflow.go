package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequisitionTransitionsTotal 按动作统计需求单状态流转次数。
	RequisitionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ats",
			Subsystem: "workflow",
			Name:      "requisition_transitions_total",
			Help:      "需求单状态流转总数。",
		},
		[]string{"action"},
	)

	// PipelineMigrationsTotal 统计职位阶段迁移次数。
	PipelineMigrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ats",
			Subsystem: "workflow",
			Name:      "pipeline_migrations_total",
			Help:      "职位阶段集合迁移总数。",
		},
	)
)
