// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package collatorprotocol

import (
	"fmt"

	parachaintypes "github.com/ChainSafe/collation-scheduler/dot/parachain/types"
	"github.com/ChainSafe/collation-scheduler/lib/common"
	"github.com/disiqueira/gotree"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ProspectiveCandidate identifies a candidate advertised by a collator when
// asynchronous backing is enabled for the relay parent.
type ProspectiveCandidate struct {
	CandidateHash      parachaintypes.CandidateHash
	ParentHeadDataHash common.Hash
}

// PendingCollation is a collation which was advertised to us but not fetched yet.
type PendingCollation struct {
	// Candidate's relay parent
	RelayParent common.Hash
	// Parachain id
	ParaID parachaintypes.ParaID
	// Peer that advertised this collation
	PeerID peer.ID
	// Optional candidate hash and parent head-data hash if were
	// advertised.
	ProspectiveCandidate *ProspectiveCandidate
}

// NewPendingCollation creates a pending collation. The prospective candidate
// must be nil for relay parents without asynchronous backing.
func NewPendingCollation(
	relayParent common.Hash,
	paraID parachaintypes.ParaID,
	peerID peer.ID,
	prospectiveCandidate *ProspectiveCandidate,
) PendingCollation {
	return PendingCollation{
		RelayParent:          relayParent,
		ParaID:               paraID,
		PeerID:               peerID,
		ProspectiveCandidate: prospectiveCandidate,
	}
}

// candidateHash returns the advertised candidate hash, or nil
// for advertisements without a prospective candidate.
func (pc PendingCollation) candidateHash() *parachaintypes.CandidateHash {
	if pc.ProspectiveCandidate == nil {
		return nil
	}
	candidateHash := pc.ProspectiveCandidate.CandidateHash
	return &candidateHash
}

// UnfetchedCollation is a pending collation together with the collator which
// advertised it.
type UnfetchedCollation struct {
	CollatorID       parachaintypes.CollatorID
	PendingCollation PendingCollation
}

// FetchingFrom identifies a collation fetch by the collator it is fetched from
// and, with asynchronous backing, the candidate being fetched.
type FetchingFrom struct {
	CollatorID    parachaintypes.CollatorID
	CandidateHash *parachaintypes.CandidateHash
}

// NewFetchingFrom returns the identity of a fetch of the given collation.
func NewFetchingFrom(collation UnfetchedCollation) FetchingFrom {
	return FetchingFrom{
		CollatorID:    collation.CollatorID,
		CandidateHash: collation.PendingCollation.candidateHash(),
	}
}

// matches returns true if other identifies the same fetch. If a candidate
// hash was recorded for f, other must carry the same candidate hash.
func (f FetchingFrom) matches(other FetchingFrom) bool {
	if f.CollatorID != other.CollatorID {
		return false
	}
	if f.CandidateHash == nil {
		return true
	}
	return other.CandidateHash != nil && *f.CandidateHash == *other.CandidateHash
}

func (f FetchingFrom) String() string {
	if f.CandidateHash == nil {
		return fmt.Sprintf("collator %s", f.CollatorID)
	}
	return fmt.Sprintf("collator %s, candidate %s", f.CollatorID, f.CandidateHash.Value.Short())
}

// CollationStatus is the status of the collations of a relay parent.
type CollationStatus uint

const (
	// Waiting is the initial state, no collation is being fetched or validated.
	Waiting CollationStatus = iota
	// Fetching means a collation is being fetched.
	Fetching
	// WaitingOnValidation means a fetched collation was handed over for validation.
	WaitingOnValidation
	// Seconded means a collation of this relay parent was seconded.
	Seconded
)

func (s CollationStatus) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Fetching:
		return "fetching"
	case WaitingOnValidation:
		return "waiting on validation"
	case Seconded:
		return "seconded"
	default:
		return fmt.Sprintf("unknown(%d)", uint(s))
	}
}

type waitingCollation struct {
	// insertion order across all paras, used when the claim queue is not supported
	seq       uint64
	collation UnfetchedCollation
}

type inFlightFetch struct {
	FetchingFrom
	paraID parachaintypes.ParaID
}

// Collations tracks the collations advertised for a single relay parent and
// decides which one is fetched next. It is not safe for concurrent use.
type Collations struct {
	// What is the current status in regards to a collation for this relay parent?
	status CollationStatus
	// The collation currently being fetched, at most one at a time.
	fetchingFrom *inFlightFetch
	// Collations that were advertised to us, but we did not yet fetch, per para.
	waitingQueue map[parachaintypes.ParaID][]waitingCollation
	// How many collations have been fetched (or given up on) per para.
	fetchedPerPara map[parachaintypes.ParaID]uint
	// How many times each para occurs in the claim queue of the relay parent.
	claimsPerPara map[parachaintypes.ParaID]uint
	// Whether the claim queue of the relay parent is known. Without it
	// collations are fetched in the order they were advertised.
	claimQueueSupport bool
	nextSeq           uint64
}

// NewCollations creates the collations of a relay parent with the paras scheduled on our
// core for it.
func NewCollations(claimQueue []parachaintypes.ParaID, claimQueueSupport bool) *Collations {
	claimsPerPara := make(map[parachaintypes.ParaID]uint)
	fetchedPerPara := make(map[parachaintypes.ParaID]uint)
	for _, paraID := range claimQueue {
		claimsPerPara[paraID]++
		fetchedPerPara[paraID] = 0
	}

	return &Collations{
		status:            Waiting,
		waitingQueue:      make(map[parachaintypes.ParaID][]waitingCollation),
		fetchedPerPara:    fetchedPerPara,
		claimsPerPara:     claimsPerPara,
		claimQueueSupport: claimQueueSupport,
	}
}

// Status returns the collation status of the relay parent.
func (c *Collations) Status() CollationStatus {
	return c.status
}

// IsFetching returns true if a collation is currently being fetched.
func (c *Collations) IsFetching() bool {
	return c.fetchingFrom != nil
}

// FetchingFrom returns the fetch in flight and the para it is for.
// The boolean is false if nothing is being fetched.
func (c *Collations) FetchingFrom() (FetchingFrom, parachaintypes.ParaID, bool) {
	if c.fetchingFrom == nil {
		return FetchingFrom{}, 0, false
	}
	return c.fetchingFrom.FetchingFrom, c.fetchingFrom.paraID, true
}

// FetchedCount returns how many collations were noted as fetched for the para.
func (c *Collations) FetchedCount(paraID parachaintypes.ParaID) uint {
	return c.fetchedPerPara[paraID]
}

// WaitingCount returns how many collations of the para wait to be fetched.
func (c *Collations) WaitingCount(paraID parachaintypes.ParaID) int {
	return len(c.waitingQueue[paraID])
}

// TotalWaiting returns how many collations wait to be fetched across all paras.
func (c *Collations) TotalWaiting() (total int) {
	for _, queue := range c.waitingQueue {
		total += len(queue)
	}
	return total
}

// AddToWaitingQueue appends the collation to the waiting queue of its para.
// Duplicate advertisements are not detected here.
func (c *Collations) AddToWaitingQueue(collation UnfetchedCollation) {
	paraID := collation.PendingCollation.ParaID
	c.waitingQueue[paraID] = append(c.waitingQueue[paraID], waitingCollation{
		seq:       c.nextSeq,
		collation: collation,
	})
	c.nextSeq++
}

// NoteFetched notes that a collation of the para was fetched, or that its fetch was given up on,
// and clears the fetch in flight. The para's claim is consumed either way.
func (c *Collations) NoteFetched(paraID parachaintypes.ParaID) {
	c.fetchedPerPara[paraID]++
	c.fetchingFrom = nil
	if c.status == Fetching {
		c.status = WaitingOnValidation
	}
}

// NoteSeconded notes that a collation of the relay parent was seconded.
func (c *Collations) NoteSeconded() {
	c.status = Seconded
}

// BackToWaiting resets the status once validation of a fetched collation is over.
// Without asynchronous backing a seconded relay parent stays seconded.
func (c *Collations) BackToWaiting(relayParentMode parachaintypes.ProspectiveParachainsMode) {
	if c.status == Seconded && !relayParentMode.IsEnabled {
		return
	}
	if c.fetchingFrom != nil {
		c.status = Fetching
		return
	}
	c.status = Waiting
}

// IsSecondedLimitReached returns true if no more collations of the para should be fetched,
// counting the fetched ones and numPendingFetches fetches in flight.
//
// With the claim queue, a para can have as many candidates as it has claims. Without it, the
// limit is one candidate per relay parent, or MaxCandidateDepth + 1 with asynchronous backing.
func (c *Collations) IsSecondedLimitReached(
	relayParentMode parachaintypes.ProspectiveParachainsMode,
	paraID parachaintypes.ParaID,
	numPendingFetches uint,
) bool {
	var secondedLimit uint
	switch {
	case c.claimQueueSupport:
		secondedLimit = c.claimsPerPara[paraID]
	case relayParentMode.IsEnabled:
		secondedLimit = relayParentMode.MaxCandidateDepth + 1
	default:
		secondedLimit = 1
	}

	return c.fetchedPerPara[paraID]+numPendingFetches >= secondedLimit
}

// GetNextCollationToFetch removes and returns the next collation to fetch, or nil if there
// is nothing to fetch right now. finishedOne is the fetch which just completed; if it is not the
// fetch in flight, the call is ignored. pendingFetches holds, per para, how many fetches are in
// flight for other relay parents and therefore already hold a claim.
func (c *Collations) GetNextCollationToFetch(
	finishedOne FetchingFrom,
	relayParentMode parachaintypes.ProspectiveParachainsMode,
	claimQueue []parachaintypes.ParaID,
	pendingFetches map[parachaintypes.ParaID]uint,
) *UnfetchedCollation {
	// If finished one does not match the fetch in flight, then we already
	// dequeued another fetch to replace it.
	if c.fetchingFrom != nil && !c.fetchingFrom.matches(finishedOne) {
		logger.Tracef("not proceeding to the next collation, fetching from %s, finished one: %s",
			c.fetchingFrom.FetchingFrom, finishedOne)
		return nil
	}

	if c.status == Seconded && !relayParentMode.IsEnabled {
		// Without async backing only one candidate can be seconded per relay parent.
		return nil
	}

	var next *waitingCollation
	if c.claimQueueSupport {
		next = c.pickFromClaimQueue(claimQueue, pendingFetches)
	} else {
		next = c.pickOldest()
	}
	if next == nil {
		return nil
	}

	collation := next.collation
	c.fetchingFrom = &inFlightFetch{
		FetchingFrom: NewFetchingFrom(collation),
		paraID:       collation.PendingCollation.ParaID,
	}
	c.status = Fetching
	return &collation
}

// pickFromClaimQueue walks the claim queue in order and dequeues a collation for the first claim
// which is neither fetched nor pending and has a collation waiting. Claims without a waiting
// collation do not block the claims after them.
func (c *Collations) pickFromClaimQueue(
	claimQueue []parachaintypes.ParaID, pendingFetches map[parachaintypes.ParaID]uint,
) *waitingCollation {
	seen := make(map[parachaintypes.ParaID]uint, len(c.claimsPerPara))
	for position, paraID := range claimQueue {
		seen[paraID]++
		claimed := c.fetchedPerPara[paraID] + pendingFetches[paraID]
		if seen[paraID] <= claimed {
			continue
		}

		if len(c.waitingQueue[paraID]) == 0 {
			logger.Tracef("claim queue position %d for para %d has no collation waiting", position, paraID)
			continue
		}

		logger.Tracef("picked a collation for para %d at claim queue position %d", paraID, position)
		return c.dequeue(paraID)
	}

	return nil
}

// pickOldest dequeues the collation which was advertised first across all paras.
func (c *Collations) pickOldest() *waitingCollation {
	var (
		oldestPara parachaintypes.ParaID
		found      bool
		oldestSeq  uint64
	)
	for paraID, queue := range c.waitingQueue {
		if len(queue) == 0 {
			continue
		}
		if !found || queue[0].seq < oldestSeq {
			oldestPara, oldestSeq, found = paraID, queue[0].seq, true
		}
	}

	if !found {
		return nil
	}
	return c.dequeue(oldestPara)
}

func (c *Collations) dequeue(paraID parachaintypes.ParaID) *waitingCollation {
	queue := c.waitingQueue[paraID]
	head := queue[0]
	if len(queue) == 1 {
		delete(c.waitingQueue, paraID)
	} else {
		c.waitingQueue[paraID] = queue[1:]
	}
	return &head
}

// hasAdvertisement returns true if the collator already advertised the candidate and it is
// either waiting or being fetched. For advertisements without a candidate hash, any waiting
// or in flight collation of the collator for the para counts.
func (c *Collations) hasAdvertisement(
	collatorID parachaintypes.CollatorID,
	paraID parachaintypes.ParaID,
	candidateHash *parachaintypes.CandidateHash,
) bool {
	sameAdvertisement := func(fetch FetchingFrom) bool {
		if fetch.CollatorID != collatorID {
			return false
		}
		if candidateHash == nil || fetch.CandidateHash == nil {
			return candidateHash == nil && fetch.CandidateHash == nil
		}
		return *fetch.CandidateHash == *candidateHash
	}

	if c.fetchingFrom != nil && c.fetchingFrom.paraID == paraID && sameAdvertisement(c.fetchingFrom.FetchingFrom) {
		return true
	}

	return slices.IndexFunc(c.waitingQueue[paraID], func(waiting waitingCollation) bool {
		return sameAdvertisement(NewFetchingFrom(waiting.collation))
	}) != -1
}

// sortedParaIDs returns every para known to the collations, in ascending order.
func (c *Collations) sortedParaIDs() []parachaintypes.ParaID {
	known := make(map[parachaintypes.ParaID]struct{}, len(c.claimsPerPara))
	for paraID := range c.claimsPerPara {
		known[paraID] = struct{}{}
	}
	for paraID := range c.fetchedPerPara {
		known[paraID] = struct{}{}
	}
	for paraID := range c.waitingQueue {
		known[paraID] = struct{}{}
	}

	paraIDs := maps.Keys(known)
	slices.Sort(paraIDs)
	return paraIDs
}

// String utilizes github.com/disiqueira/gotree to create a printable tree
// of the collations state.
func (c *Collations) String() string {
	tree := gotree.New("Collations")
	c.addToTree(tree)
	return tree.Print()
}

func (c *Collations) addToTree(tree gotree.Tree) {
	tree.Add(fmt.Sprintf("status: %s", c.status))
	tree.Add(fmt.Sprintf("claim queue support: %t", c.claimQueueSupport))
	if c.fetchingFrom != nil {
		tree.Add(fmt.Sprintf("fetching: para %d from %s", c.fetchingFrom.paraID, c.fetchingFrom.FetchingFrom))
	} else {
		tree.Add("fetching: none")
	}

	for _, paraID := range c.sortedParaIDs() {
		paraTree := tree.Add(fmt.Sprintf("para %d: claims %d, fetched %d, waiting %d",
			paraID, c.claimsPerPara[paraID], c.fetchedPerPara[paraID], len(c.waitingQueue[paraID])))
		for _, waiting := range c.waitingQueue[paraID] {
			paraTree.Add(fmt.Sprintf("#%d %s from peer %s",
				waiting.seq, NewFetchingFrom(waiting.collation), waiting.collation.PendingCollation.PeerID))
		}
	}
}
