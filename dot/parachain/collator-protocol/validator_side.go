// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package collatorprotocol

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	parachaintypes "github.com/ChainSafe/collation-scheduler/dot/parachain/types"
	"github.com/ChainSafe/collation-scheduler/internal/log"
	"github.com/ChainSafe/collation-scheduler/lib/common"
	"github.com/disiqueira/gotree"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slices"
)

var logger = log.NewFromGlobal(log.AddContext("pkg", "collator-protocol"))

var (
	ErrRelayParentUnknown     = errors.New("relay parent is unknown")
	ErrInvalidAssignment      = errors.New("we're assigned to a different para at the given relay parent")
	ErrProtocolMismatch       = errors.New("an advertisement format doesn't match the relay parent")
	ErrDuplicateAdvertisement = errors.New("advertisement is already known")
	ErrSecondedLimitReached   = errors.New("para reached a limit of seconded" +
		" candidates for this relay parent")
	ErrNilClaimQueueSource = errors.New("claim queue source is nil")
)

// ClaimQueueSource provides the per relay parent runtime information the validator side
// needs to schedule collation fetches.
type ClaimQueueSource interface {
	// ProspectiveParachainsMode returns whether asynchronous backing is enabled at the relay parent.
	ProspectiveParachainsMode(relayParent common.Hash) (parachaintypes.ProspectiveParachainsMode, error)
	// ClaimQueue returns the claim queue at the relay parent. If the runtime does not support
	// the claim queue, supported is false and each core holds the para scheduled on it.
	ClaimQueue(relayParent common.Hash) (claimQueue parachaintypes.ClaimQueue, supported bool, err error)
}

// PerRelayParent is the state tracked for an active relay parent.
type PerRelayParent struct {
	prospectiveParachainMode parachaintypes.ProspectiveParachainsMode
	// paras scheduled on our core, in claim queue order
	assignment []parachaintypes.ParaID
	collations *Collations
}

// ValidatorSide admits collation advertisements for the active relay parents and decides
// which collations to fetch. It is safe for concurrent use.
type ValidatorSide struct {
	source  ClaimQueueSource
	core    parachaintypes.CoreIndex
	metrics *metrics

	mutex sync.Mutex
	// state tracked per relay parent
	perRelayParent map[common.Hash]*PerRelayParent
}

// NewValidatorSide creates a validator side for the given core. Its metrics are
// registered with reg.
func NewValidatorSide(
	source ClaimQueueSource,
	core parachaintypes.CoreIndex,
	reg prometheus.Registerer,
) (*ValidatorSide, error) {
	if source == nil {
		return nil, ErrNilClaimQueueSource
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &ValidatorSide{
		source:         source,
		core:           core,
		metrics:        m,
		perRelayParent: make(map[common.Hash]*PerRelayParent),
	}, nil
}

// ActivateLeaf starts accepting advertisements for the relay parent.
// Activating a relay parent that is already active does nothing.
func (vs *ValidatorSide) ActivateLeaf(relayParent common.Hash) error {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	if _, ok := vs.perRelayParent[relayParent]; ok {
		return nil
	}

	mode, err := vs.source.ProspectiveParachainsMode(relayParent)
	if err != nil {
		return fmt.Errorf("getting prospective parachains mode for relay parent %s: %w", relayParent.Short(), err)
	}

	claimQueue, claimQueueSupport, err := vs.source.ClaimQueue(relayParent)
	if err != nil {
		return fmt.Errorf("getting claim queue for relay parent %s: %w", relayParent.Short(), err)
	}

	assignment := claimQueue.ForCore(vs.core)
	vs.perRelayParent[relayParent] = &PerRelayParent{
		prospectiveParachainMode: mode,
		assignment:               assignment,
		collations:               NewCollations(assignment, claimQueueSupport),
	}
	vs.metrics.activeLeaves.Set(float64(len(vs.perRelayParent)))

	logger.Debugf("activated relay parent %s with %s, assignment %v on core %d, claim queue support %t",
		relayParent.Short(), mode, assignment, vs.core, claimQueueSupport)
	return nil
}

// DeactivateLeaf drops the relay parent together with its waiting collations.
// A fetch in flight for it no longer counts as pending.
func (vs *ValidatorSide) DeactivateLeaf(relayParent common.Hash) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	perRelayParent, ok := vs.perRelayParent[relayParent]
	if !ok {
		return
	}

	delete(vs.perRelayParent, relayParent)
	vs.metrics.activeLeaves.Set(float64(len(vs.perRelayParent)))
	vs.updateWaitingCollations()

	logger.Debugf("deactivated relay parent %s, dropped %d waiting collations",
		relayParent.Short(), perRelayParent.collations.TotalWaiting())
}

// HandleAdvertisement admits a collation advertised by the collator. If nothing is being
// fetched for the relay parent, it returns the collation to fetch now, which is not
// necessarily the advertised one.
func (vs *ValidatorSide) HandleAdvertisement(
	collatorID parachaintypes.CollatorID,
	pendingCollation PendingCollation,
) (toFetch *UnfetchedCollation, err error) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	defer func() {
		vs.metrics.observeAdvertisement(err)
		if err != nil {
			logger.Debugf("rejected advertisement from collator %s for para %d: %s",
				collatorID, pendingCollation.ParaID, err)
		}
	}()

	relayParent := pendingCollation.RelayParent
	perRelayParent, ok := vs.perRelayParent[relayParent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelayParentUnknown, relayParent.Short())
	}

	paraID := pendingCollation.ParaID
	if !slices.Contains(perRelayParent.assignment, paraID) {
		return nil, fmt.Errorf("%w: para %d", ErrInvalidAssignment, paraID)
	}

	mode := perRelayParent.prospectiveParachainMode
	if (pendingCollation.ProspectiveCandidate != nil) != mode.IsEnabled {
		return nil, fmt.Errorf("%w: %s", ErrProtocolMismatch, mode)
	}

	collations := perRelayParent.collations
	if collations.hasAdvertisement(collatorID, paraID, pendingCollation.candidateHash()) {
		return nil, ErrDuplicateAdvertisement
	}

	numPending := vs.pendingFetches(nil)[paraID]
	if !collations.claimQueueSupport {
		// without a claim queue every waiting collation is fetched eventually
		numPending += uint(collations.WaitingCount(paraID))
	}
	if collations.IsSecondedLimitReached(mode, paraID, numPending) {
		return nil, fmt.Errorf("%w: para %d", ErrSecondedLimitReached, paraID)
	}

	collations.AddToWaitingQueue(UnfetchedCollation{
		CollatorID:       collatorID,
		PendingCollation: pendingCollation,
	})
	logger.Tracef("queued collation of para %d from collator %s at relay parent %s",
		paraID, collatorID, relayParent.Short())

	if !collations.IsFetching() {
		toFetch = vs.nextToFetch(relayParent, perRelayParent, FetchingFrom{})
	}

	vs.updateWaitingCollations()
	return toFetch, nil
}

// CompleteFetch notes the end of the fetch identified by finished and returns the next collation
// to fetch for the relay parent. A completion of a fetch which is no longer in flight is ignored.
func (vs *ValidatorSide) CompleteFetch(
	relayParent common.Hash,
	finished FetchingFrom,
	outcome FetchOutcome,
) (*UnfetchedCollation, error) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	perRelayParent, ok := vs.perRelayParent[relayParent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelayParentUnknown, relayParent.Short())
	}

	collations := perRelayParent.collations
	inFlight, paraID, fetching := collations.FetchingFrom()
	if !fetching || !inFlight.matches(finished) {
		vs.metrics.staleCompletions.Inc()
		logger.Debugf("ignoring %s completion of %s at relay parent %s, in flight: %t",
			outcome, finished, relayParent.Short(), fetching)
		return nil, nil
	}

	vs.metrics.observeFetchCompleted(outcome)
	collations.NoteFetched(paraID)
	if outcome != Succeeded {
		// nothing to validate
		collations.BackToWaiting(perRelayParent.prospectiveParachainMode)
	}
	logger.Tracef("fetch of para %d from %s %s", paraID, finished, outcome)

	toFetch := vs.nextToFetch(relayParent, perRelayParent, finished)
	vs.updateWaitingCollations()
	return toFetch, nil
}

// NoteSeconded notes that a collation fetched for the relay parent was seconded.
func (vs *ValidatorSide) NoteSeconded(relayParent common.Hash) error {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	perRelayParent, ok := vs.perRelayParent[relayParent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRelayParentUnknown, relayParent.Short())
	}

	perRelayParent.collations.NoteSeconded()
	perRelayParent.collations.BackToWaiting(perRelayParent.prospectiveParachainMode)
	return nil
}

// NoteInvalid notes that a collation fetched for the relay parent failed validation.
func (vs *ValidatorSide) NoteInvalid(relayParent common.Hash) error {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	perRelayParent, ok := vs.perRelayParent[relayParent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRelayParentUnknown, relayParent.Short())
	}

	perRelayParent.collations.BackToWaiting(perRelayParent.prospectiveParachainMode)
	return nil
}

// IsFetching returns true if a collation is being fetched for the relay parent.
func (vs *ValidatorSide) IsFetching(relayParent common.Hash) bool {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	perRelayParent, ok := vs.perRelayParent[relayParent]
	return ok && perRelayParent.collations.IsFetching()
}

// Status returns the collation status of the relay parent.
func (vs *ValidatorSide) Status(relayParent common.Hash) (CollationStatus, error) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	perRelayParent, ok := vs.perRelayParent[relayParent]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRelayParentUnknown, relayParent.Short())
	}
	return perRelayParent.collations.Status(), nil
}

// PendingFetches returns how many fetches are in flight per para across all active relay parents.
func (vs *ValidatorSide) PendingFetches() map[parachaintypes.ParaID]uint {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	return vs.pendingFetches(nil)
}

// pendingFetches counts the fetches in flight per para, skipping the excluded relay parent.
func (vs *ValidatorSide) pendingFetches(exclude *common.Hash) map[parachaintypes.ParaID]uint {
	pending := make(map[parachaintypes.ParaID]uint)
	for relayParent, perRelayParent := range vs.perRelayParent {
		if exclude != nil && relayParent == *exclude {
			continue
		}
		if _, paraID, ok := perRelayParent.collations.FetchingFrom(); ok {
			pending[paraID]++
		}
	}
	return pending
}

func (vs *ValidatorSide) nextToFetch(
	relayParent common.Hash,
	perRelayParent *PerRelayParent,
	finished FetchingFrom,
) *UnfetchedCollation {
	next := perRelayParent.collations.GetNextCollationToFetch(
		finished,
		perRelayParent.prospectiveParachainMode,
		perRelayParent.assignment,
		vs.pendingFetches(&relayParent),
	)
	vs.metrics.observeFetchStarted(next)
	if next != nil {
		logger.Debugf("fetching collation of para %d from %s at relay parent %s",
			next.PendingCollation.ParaID, NewFetchingFrom(*next), relayParent.Short())
	}
	return next
}

func (vs *ValidatorSide) updateWaitingCollations() {
	var waiting int
	for _, perRelayParent := range vs.perRelayParent {
		waiting += perRelayParent.collations.TotalWaiting()
	}
	vs.metrics.waitingCollations.Set(float64(waiting))
}

// String utilizes github.com/disiqueira/gotree to create a printable tree
// of the relay parents and their collations.
func (vs *ValidatorSide) String() string {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	relayParents := make([]common.Hash, 0, len(vs.perRelayParent))
	for relayParent := range vs.perRelayParent {
		relayParents = append(relayParents, relayParent)
	}
	sort.Slice(relayParents, func(i, j int) bool {
		return bytes.Compare(relayParents[i][:], relayParents[j][:]) < 0
	})

	tree := gotree.New(fmt.Sprintf("ValidatorSide (core %d)", vs.core))
	for _, relayParent := range relayParents {
		perRelayParent := vs.perRelayParent[relayParent]
		subTree := tree.Add(fmt.Sprintf("relay parent %s, %s, assignment %v",
			relayParent.Short(), perRelayParent.prospectiveParachainMode, perRelayParent.assignment))
		perRelayParent.collations.addToTree(subTree)
	}
	return tree.Print()
}
