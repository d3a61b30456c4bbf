// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package parachaintypes

import (
	"fmt"

	"github.com/ChainSafe/collation-scheduler/lib/common"
	"github.com/ChainSafe/go-schnorrkel"
)

// sr25519PublicKeyLength is the length of an encoded sr25519 public key.
const sr25519PublicKeyLength = 32

// ParaID Unique identifier of a parachain.
type ParaID uint32

// CoreIndex is the index of an availability core, unique during a session.
type CoreIndex uint32

// CollatorID is the sr25519 public key a collator declares itself with.
type CollatorID [sr25519PublicKeyLength]byte

// String returns the 0x prefixed hex encoding of the collator id.
func (c CollatorID) String() string {
	return fmt.Sprintf("0x%x", c[:])
}

// Validate checks the collator id decodes to a valid sr25519 public key.
func (c CollatorID) Validate() error {
	var publicKey schnorrkel.PublicKey
	err := publicKey.Decode([sr25519PublicKeyLength]byte(c))
	if err != nil {
		return fmt.Errorf("decoding sr25519 public key %s: %w", c, err)
	}
	return nil
}

// CandidateHash makes it easy to enforce that a hash is a candidate hash on the type level.
type CandidateHash struct {
	Value common.Hash `scale:"1"`
}

// String returns the hex encoding of the candidate hash.
func (c CandidateHash) String() string {
	return c.Value.String()
}

// ProspectiveParachainsMode is the mode of a relay parent with respect
// to asynchronous backing.
type ProspectiveParachainsMode struct {
	// IsEnabled is true if the runtime API supports prospective parachains.
	IsEnabled bool

	// MaxCandidateDepth is the maximum number of para blocks between the para head in a relay parent
	// and a new candidate. Restricts nodes from building arbitrary long chains and spamming other
	// validators.
	MaxCandidateDepth uint

	// AllowedAncestryLen is how many ancestors of a relay parent are allowed to build candidates on top of.
	AllowedAncestryLen uint
}

// String implements fmt.Stringer.
func (m ProspectiveParachainsMode) String() string {
	if !m.IsEnabled {
		return "disabled"
	}
	return fmt.Sprintf("enabled(max candidate depth: %d, allowed ancestry length: %d)",
		m.MaxCandidateDepth, m.AllowedAncestryLen)
}

// ClaimQueue maps each availability core to the ordered paras scheduled on it for the
// upcoming blocks, the first entry being the para scheduled for the next block.
type ClaimQueue map[CoreIndex][]ParaID

// ForCore returns a copy of the paras scheduled on the given core, or nil if the
// core has nothing scheduled.
func (cq ClaimQueue) ForCore(core CoreIndex) []ParaID {
	paras, ok := cq[core]
	if !ok || len(paras) == 0 {
		return nil
	}

	assignments := make([]ParaID, len(paras))
	copy(assignments, paras)
	return assignments
}
