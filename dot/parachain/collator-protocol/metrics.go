// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package collatorprotocol

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "gossamer_parachain"
	metricsSubsystem = "collator_protocol"

	// Advertisement result label values
	resultAccepted = "accepted"
)

// FetchOutcome is how a collation fetch ended.
type FetchOutcome uint

const (
	// Succeeded means the collation was received.
	Succeeded FetchOutcome = iota
	// Failed means the collator failed to provide the collation.
	Failed
	// TimedOut means the collator did not answer in time.
	TimedOut
)

func (o FetchOutcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("unknown(%d)", uint(o))
	}
}

type metrics struct {
	advertisements    *prometheus.CounterVec // by result
	fetchesStarted    prometheus.Counter
	fetchesCompleted  *prometheus.CounterVec // by outcome
	staleCompletions  prometheus.Counter
	waitingCollations prometheus.Gauge
	activeLeaves      prometheus.Gauge
}

// newMetrics creates the validator side metrics and registers them with reg.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		advertisements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "advertisements_total",
			Help:      "Total collation advertisements by result",
		}, []string{"result"}),
		fetchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fetches_started_total",
			Help:      "Total collation fetches started",
		}),
		fetchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fetches_completed_total",
			Help:      "Total collation fetches completed by outcome",
		}, []string{"outcome"}),
		staleCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stale_completions_total",
			Help:      "Total fetch completions ignored because another fetch is in flight",
		}),
		waitingCollations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "waiting_collations",
			Help:      "Number of advertised collations waiting to be fetched",
		}),
		activeLeaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_relay_parents",
			Help:      "Number of relay parents collations are accepted for",
		}),
	}

	err := errors.Join(
		reg.Register(m.advertisements),
		reg.Register(m.fetchesStarted),
		reg.Register(m.fetchesCompleted),
		reg.Register(m.staleCompletions),
		reg.Register(m.waitingCollations),
		reg.Register(m.activeLeaves),
	)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	return m, nil
}

// observeAdvertisement counts an advertisement, labelled with the
// rejection error or as accepted when err is nil.
func (m *metrics) observeAdvertisement(err error) {
	result := resultAccepted
	if err != nil {
		result = advertisementErrorLabel(err)
	}
	m.advertisements.WithLabelValues(result).Inc()
}

func (m *metrics) observeFetchStarted(collation *UnfetchedCollation) {
	if collation != nil {
		m.fetchesStarted.Inc()
	}
}

func (m *metrics) observeFetchCompleted(outcome FetchOutcome) {
	m.fetchesCompleted.WithLabelValues(outcome.String()).Inc()
}

func advertisementErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrRelayParentUnknown):
		return "relay_parent_unknown"
	case errors.Is(err, ErrInvalidAssignment):
		return "invalid_assignment"
	case errors.Is(err, ErrProtocolMismatch):
		return "protocol_mismatch"
	case errors.Is(err, ErrDuplicateAdvertisement):
		return "duplicate"
	case errors.Is(err, ErrSecondedLimitReached):
		return "seconded_limit_reached"
	default:
		return "error"
	}
}
