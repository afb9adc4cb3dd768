// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var webhookEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chintai",
		Name:      "webhook_events_total",
		Help:      "Webhook events by type and outcome",
	},
	[]string{"type", "outcome"}, // outcome: processed, duplicate, failed, skipped
)

var dialogTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chintai",
		Name:      "dialog_transitions_total",
		Help:      "Conversation step changes",
	},
	[]string{"from", "to"},
)

var caseLinks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chintai",
		Name:      "case_links_total",
		Help:      "Case link attempts by outcome",
	},
	[]string{"outcome"},
)

var outboundFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chintai",
		Name:      "outbound_failures_total",
		Help:      "Failed reply and push calls to the LINE platform",
	},
	[]string{"kind"}, // kind: reply, push
)

func init() {
	prometheus.MustRegister(webhookEvents, dialogTransitions, caseLinks, outboundFailures)
}

// RegisterMetrics registers the collectors with a non-default registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(webhookEvents, dialogTransitions, caseLinks, outboundFailures)
}

func WebhookEvent(eventType, outcome string) {
	webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func Transition(from, to string) {
	dialogTransitions.WithLabelValues(from, to).Inc()
}

func CaseLink(outcome string) {
	caseLinks.WithLabelValues(outcome).Inc()
}

func OutboundFailure(kind string) {
	outboundFailures.WithLabelValues(kind).Inc()
}
