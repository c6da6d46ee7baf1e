package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Client-side chat synchronization metrics
var (
	ChatPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_polls_total",
		Help: "Total number of incremental message polls",
	}, []string{"status"})

	ChatMessagesAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_applied_total",
		Help: "Total number of messages appended to the local list",
	})

	ChatMessagesDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_duplicate_total",
		Help: "Total number of messages dropped by the seen-set",
	})
)
