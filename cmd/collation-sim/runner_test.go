// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	collatorprotocol "github.com/ChainSafe/collation-scheduler/dot/parachain/collator-protocol"
	parachaintypes "github.com/ChainSafe/collation-scheduler/dot/parachain/types"
	"github.com/ChainSafe/collation-scheduler/lib/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, path string) (*runner, *bytes.Buffer) {
	t.Helper()

	scenario, err := loadScenario(path)
	require.NoError(t, err)

	buffer := bytes.NewBuffer(nil)
	r, err := newRunner(scenario, buffer)
	require.NoError(t, err)
	return r, buffer
}

func TestRunner_run(t *testing.T) {
	t.Parallel()

	paths, err := filepath.Glob("testdata/*.toml")
	require.NoError(t, err)

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			t.Parallel()

			r, buffer := newTestRunner(t, path)
			err := r.run()
			require.NoError(t, err, buffer.String())

			lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
			assert.Len(t, lines, len(r.scenario.Steps))
		})
	}
}

func TestRunner_run_expectationFailed(t *testing.T) {
	t.Parallel()

	path := writeScenario(t, testLeaves+testCollators+testStep+`expect = "none"`+"\n")
	r, buffer := newTestRunner(t, path)

	err := r.run()
	require.ErrorIs(t, err, ErrExpectationFailed)
	assert.Contains(t, err.Error(), "step 0 (advertise)")
	assert.Contains(t, buffer.String(), "fetch alice para 1")
}

func TestRunner_writeMetrics(t *testing.T) {
	t.Parallel()

	r, _ := newTestRunner(t, "testdata/claim_queue.toml")
	require.NoError(t, r.run())

	buffer := bytes.NewBuffer(nil)
	require.NoError(t, r.writeMetrics(buffer))
	metrics := buffer.String()
	assert.Contains(t, metrics, "gossamer_parachain_collator_protocol_fetches_started_total 6")
	assert.Contains(t, metrics, `gossamer_parachain_collator_protocol_advertisements_total{result="duplicate"} 1`)
	assert.Contains(t, metrics, `gossamer_parachain_collator_protocol_fetches_completed_total{outcome="succeeded"} 6`)
	assert.Contains(t, metrics, "gossamer_parachain_collator_protocol_active_relay_parents 1")

	buffer.Reset()
	require.NoError(t, r.writeSummary(buffer))
	assert.Equal(t, "advertisements: 8, fetches started: 6, completed: 6, stale completions: 0\n", buffer.String())
}

func TestRunner_check(t *testing.T) {
	t.Parallel()

	scenario, err := loadScenario("testdata/claim_queue.toml")
	require.NoError(t, err)
	r := &runner{scenario: scenario}

	alice := scenario.collators["alice"]
	candidate := common.RepeatByteHash(0xa0)
	toFetch := &collatorprotocol.UnfetchedCollation{
		CollatorID: alice.id,
		PendingCollation: collatorprotocol.NewPendingCollation(common.RepeatByteHash(1), alice.paraID, alice.peerID,
			&collatorprotocol.ProspectiveCandidate{CandidateHash: parachaintypes.CandidateHash{Value: candidate}}),
	}

	testCases := []struct {
		description string
		expect      string
		toFetch     *collatorprotocol.UnfetchedCollation
		stepErr     error
		errWrapped  error
	}{
		{
			description: "no expectation and no error",
			toFetch:     toFetch,
		},
		{
			description: "no expectation with error",
			stepErr:     errTest,
			errWrapped:  errTest,
		},
		{
			description: "none",
			expect:      "none",
		},
		{
			description: "none with fetch",
			expect:      "none",
			toFetch:     toFetch,
			errWrapped:  ErrExpectationFailed,
		},
		{
			description: "error matches",
			expect:      "error:test",
			stepErr:     errTest,
		},
		{
			description: "error does not match",
			expect:      "error:other",
			stepErr:     errTest,
			errWrapped:  ErrExpectationFailed,
		},
		{
			description: "error missing",
			expect:      "error:test",
			errWrapped:  ErrExpectationFailed,
		},
		{
			description: "fetch from collator",
			expect:      "fetch:alice",
			toFetch:     toFetch,
		},
		{
			description: "fetch of candidate",
			expect:      "fetch:alice:" + candidate.String(),
			toFetch:     toFetch,
		},
		{
			description: "fetch of other candidate",
			expect:      "fetch:alice:" + common.RepeatByteHash(0xa1).String(),
			toFetch:     toFetch,
			errWrapped:  ErrExpectationFailed,
		},
		{
			description: "fetch from other collator",
			expect:      "fetch:bob",
			toFetch:     toFetch,
			errWrapped:  ErrExpectationFailed,
		},
		{
			description: "fetch missing",
			expect:      "fetch:alice",
			errWrapped:  ErrExpectationFailed,
		},
		{
			description: "fetch from unknown collator",
			expect:      "fetch:dave",
			toFetch:     toFetch,
			errWrapped:  ErrUnknownCollator,
		},
		{
			description: "invalid candidate hash",
			expect:      "fetch:alice:a0",
			toFetch:     toFetch,
			errWrapped:  common.ErrNoPrefix,
		},
		{
			description: "unknown expectation",
			expect:      "maybe",
			errWrapped:  ErrInvalidExpectation,
		},
	}

	for _, c := range testCases {
		c := c
		t.Run(c.description, func(t *testing.T) {
			t.Parallel()

			err := r.check(c.expect, c.toFetch, c.stepErr)
			if c.errWrapped == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, c.errWrapped)
		})
	}
}

var errTest = errors.New("test error")

func TestScenarioSource(t *testing.T) {
	t.Parallel()

	scenario, err := loadScenario("testdata/legacy.toml")
	require.NoError(t, err)
	source := scenarioSource{scenario: scenario}

	mode, err := source.ProspectiveParachainsMode(common.RepeatByteHash(1))
	require.NoError(t, err)
	assert.False(t, mode.IsEnabled)

	mode, err = source.ProspectiveParachainsMode(common.RepeatByteHash(2))
	require.NoError(t, err)
	assert.Equal(t, parachaintypes.ProspectiveParachainsMode{
		IsEnabled: true, MaxCandidateDepth: 1, AllowedAncestryLen: 1}, mode)

	claimQueue, supported, err := source.ClaimQueue(common.RepeatByteHash(2))
	require.NoError(t, err)
	assert.False(t, supported)
	assert.Equal(t, []parachaintypes.ParaID{1}, claimQueue.ForCore(1))

	_, err = source.ProspectiveParachainsMode(common.RepeatByteHash(3))
	require.ErrorIs(t, err, ErrUnknownLeaf)
	_, _, err = source.ClaimQueue(common.RepeatByteHash(3))
	require.ErrorIs(t, err, ErrUnknownLeaf)
}
