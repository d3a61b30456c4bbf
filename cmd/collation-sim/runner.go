// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	collatorprotocol "github.com/ChainSafe/collation-scheduler/dot/parachain/collator-protocol"
	parachaintypes "github.com/ChainSafe/collation-scheduler/dot/parachain/types"
	"github.com/ChainSafe/collation-scheduler/lib/common"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var (
	ErrUnknownLeaf         = errors.New("relay parent is not a leaf of the scenario")
	ErrExpectationFailed   = errors.New("step expectation failed")
	ErrInvalidExpectation  = errors.New("invalid step expectation")
	errUnexpectedStepError = errors.New("unexpected error")
)

// scenarioSource serves the leaves of a scenario to the validator side.
type scenarioSource struct {
	scenario *Scenario
}

func (s scenarioSource) ProspectiveParachainsMode(relayParent common.Hash) (
	parachaintypes.ProspectiveParachainsMode, error) {
	leaf, ok := s.scenario.leaf(relayParent)
	if !ok {
		return parachaintypes.ProspectiveParachainsMode{}, fmt.Errorf("%w: %s", ErrUnknownLeaf, relayParent.Short())
	}
	if leaf.Mode != nil {
		return leaf.Mode.prospectiveParachainsMode(), nil
	}
	return s.scenario.Mode.prospectiveParachainsMode(), nil
}

func (s scenarioSource) ClaimQueue(relayParent common.Hash) (parachaintypes.ClaimQueue, bool, error) {
	leaf, ok := s.scenario.leaf(relayParent)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownLeaf, relayParent.Short())
	}
	return leaf.claimQueue(), s.scenario.ClaimQueueSupport, nil
}

// runner applies the steps of a scenario to a validator side.
type runner struct {
	scenario      *Scenario
	validatorSide *collatorprotocol.ValidatorSide
	registry      *prometheus.Registry
	writer        io.Writer
}

func newRunner(scenario *Scenario, writer io.Writer) (*runner, error) {
	registry := prometheus.NewRegistry()
	validatorSide, err := collatorprotocol.NewValidatorSide(
		scenarioSource{scenario: scenario}, parachaintypes.CoreIndex(scenario.Core), registry)
	if err != nil {
		return nil, fmt.Errorf("creating validator side: %w", err)
	}

	return &runner{
		scenario:      scenario,
		validatorSide: validatorSide,
		registry:      registry,
		writer:        writer,
	}, nil
}

// run activates every leaf of the scenario and then applies its steps in order.
// It stops at the first step whose expectation is not met.
func (r *runner) run() error {
	for _, leaf := range r.scenario.Leaves {
		if err := r.validatorSide.ActivateLeaf(leaf.RelayParent); err != nil {
			return fmt.Errorf("activating leaf: %w", err)
		}
	}

	for i, step := range r.scenario.Steps {
		toFetch, stepErr := r.apply(step)
		result := r.describe(toFetch, stepErr)

		err := r.check(step.Expect, toFetch, stepErr)
		if err != nil {
			fmt.Fprintf(r.writer, "%s %-10s %s %s\n",
				color.RedString("✗ %3d", i), step.Action, step.RelayParent.Short(), result)
			return fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}

		fmt.Fprintf(r.writer, "%s %-10s %s %s\n",
			color.GreenString("✓ %3d", i), step.Action, step.RelayParent.Short(), result)
	}

	return nil
}

func (r *runner) apply(step StepConfig) (*collatorprotocol.UnfetchedCollation, error) {
	relayParent := step.RelayParent

	switch step.Action {
	case actionActivate:
		return nil, r.validatorSide.ActivateLeaf(relayParent)
	case actionDeactivate:
		r.validatorSide.DeactivateLeaf(relayParent)
		return nil, nil
	case actionSeconded:
		return nil, r.validatorSide.NoteSeconded(relayParent)
	case actionInvalid:
		return nil, r.validatorSide.NoteInvalid(relayParent)
	}

	c := r.scenario.collators[step.Collator]
	var candidateHash *parachaintypes.CandidateHash
	if !step.Candidate.IsEmpty() {
		candidateHash = &parachaintypes.CandidateHash{Value: step.Candidate}
	}

	switch step.Action {
	case actionAdvertise:
		var prospectiveCandidate *collatorprotocol.ProspectiveCandidate
		if candidateHash != nil {
			prospectiveCandidate = &collatorprotocol.ProspectiveCandidate{
				CandidateHash:      *candidateHash,
				ParentHeadDataHash: step.Candidate,
			}
		}
		pendingCollation := collatorprotocol.NewPendingCollation(relayParent, c.paraID, c.peerID, prospectiveCandidate)
		return r.validatorSide.HandleAdvertisement(c.id, pendingCollation)
	case actionComplete, actionFail, actionTimeout:
		finished := collatorprotocol.FetchingFrom{CollatorID: c.id, CandidateHash: candidateHash}
		return r.validatorSide.CompleteFetch(relayParent, finished, fetchOutcome(step.Action))
	default:
		return nil, fmt.Errorf("unknown action %q", step.Action)
	}
}

func fetchOutcome(action string) collatorprotocol.FetchOutcome {
	switch action {
	case actionFail:
		return collatorprotocol.Failed
	case actionTimeout:
		return collatorprotocol.TimedOut
	default:
		return collatorprotocol.Succeeded
	}
}

func (r *runner) describe(toFetch *collatorprotocol.UnfetchedCollation, err error) string {
	switch {
	case err != nil:
		return color.YellowString("error: %s", err)
	case toFetch == nil:
		return "nothing to fetch"
	default:
		return color.CyanString("fetch %s", r.fetchString(*toFetch))
	}
}

// fetchString formats the fetch as used in step expectations.
func (r *runner) fetchString(collation collatorprotocol.UnfetchedCollation) string {
	s := fmt.Sprintf("%s para %d", r.scenario.collatorName(collation.CollatorID), collation.PendingCollation.ParaID)
	if collation.PendingCollation.ProspectiveCandidate != nil {
		s += " candidate " + collation.PendingCollation.ProspectiveCandidate.CandidateHash.Value.String()
	}
	return s
}

// check verifies the step result against the expectation. An empty expectation
// only requires the step not to fail.
func (r *runner) check(expect string, toFetch *collatorprotocol.UnfetchedCollation, stepErr error) error {
	kind, argument, _ := strings.Cut(expect, ":")

	switch kind {
	case "":
		if stepErr != nil {
			return fmt.Errorf("%w: %w", errUnexpectedStepError, stepErr)
		}
		return nil
	case "none":
		if stepErr != nil {
			return fmt.Errorf("%w: %w", errUnexpectedStepError, stepErr)
		}
		if toFetch != nil {
			return fmt.Errorf("%w: expected nothing to fetch, got %s", ErrExpectationFailed, r.fetchString(*toFetch))
		}
		return nil
	case "error":
		if stepErr == nil {
			return fmt.Errorf("%w: expected error containing %q", ErrExpectationFailed, argument)
		}
		if !strings.Contains(stepErr.Error(), argument) {
			return fmt.Errorf("%w: expected error containing %q, got %s", ErrExpectationFailed, argument, stepErr)
		}
		return nil
	case "fetch":
		if stepErr != nil {
			return fmt.Errorf("%w: %w", errUnexpectedStepError, stepErr)
		}
		return r.checkFetch(argument, toFetch)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExpectation, expect)
	}
}

func (r *runner) checkFetch(argument string, toFetch *collatorprotocol.UnfetchedCollation) error {
	collatorName, candidate, hasCandidate := strings.Cut(argument, ":")
	if toFetch == nil {
		return fmt.Errorf("%w: expected fetch from %s, got nothing", ErrExpectationFailed, collatorName)
	}

	c, ok := r.scenario.collators[collatorName]
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrInvalidExpectation, ErrUnknownCollator, collatorName)
	}
	if toFetch.CollatorID != c.id {
		return fmt.Errorf("%w: expected fetch from %s, got %s",
			ErrExpectationFailed, collatorName, r.fetchString(*toFetch))
	}

	if !hasCandidate {
		return nil
	}

	candidateHash, err := common.HexToHash(candidate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExpectation, err)
	}
	prospectiveCandidate := toFetch.PendingCollation.ProspectiveCandidate
	if prospectiveCandidate == nil || prospectiveCandidate.CandidateHash.Value != candidateHash {
		return fmt.Errorf("%w: expected candidate %s, got %s",
			ErrExpectationFailed, candidateHash.Short(), r.fetchString(*toFetch))
	}
	return nil
}

// writeMetrics writes the gathered metrics in the prometheus text exposition format.
func (r *runner) writeMetrics(writer io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(writer, expfmt.FmtText)
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return fmt.Errorf("encoding metric family %s: %w", family.GetName(), err)
		}
	}
	return nil
}

// writeSummary writes the totals of the validator side counters.
func (r *runner) writeSummary(writer io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	totals := counterTotals(families)
	fmt.Fprintf(writer, "advertisements: %.0f, fetches started: %.0f, completed: %.0f, stale completions: %.0f\n",
		totals[metricName("advertisements_total")],
		totals[metricName("fetches_started_total")],
		totals[metricName("fetches_completed_total")],
		totals[metricName("stale_completions_total")],
	)
	return nil
}

func metricName(name string) string {
	return "gossamer_parachain_collator_protocol_" + name
}

// counterTotals sums the counters of each metric family, by family name.
func counterTotals(families []*dto.MetricFamily) map[string]float64 {
	totals := make(map[string]float64, len(families))
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range family.GetMetric() {
			totals[family.GetName()] += metric.GetCounter().GetValue()
		}
	}
	return totals
}
