package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transitionsTotal 关系转换次数，result: accepted | rejected | unchanged
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barzo",
		Subsystem: "social",
		Name:      "relationship_transitions_total",
		Help:      "Relationship transitions by resulting kind and outcome",
	}, []string{"to", "result"})

	// transactionRollbacks 写事务回滚次数（关系变更和创建人设）
	transactionRollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "barzo",
		Subsystem: "social",
		Name:      "transaction_rollbacks_total",
		Help:      "Write transactions rolled back",
	})

	notificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "barzo",
		Subsystem: "social",
		Name:      "notifications_created_total",
		Help:      "Relationship change notifications committed",
	})

	notificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "barzo",
		Subsystem: "social",
		Name:      "notifications_delivered_total",
		Help:      "Notifications delivered to live subscribers",
	})
)
