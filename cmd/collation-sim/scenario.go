// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	parachaintypes "github.com/ChainSafe/collation-scheduler/dot/parachain/types"
	"github.com/ChainSafe/collation-scheduler/lib/common"
	"github.com/ChainSafe/go-schnorrkel"
	"github.com/go-playground/validator/v10"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/naoina/toml"
	"github.com/qdm12/gotree"
)

// Step actions
const (
	actionActivate   = "activate"
	actionAdvertise  = "advertise"
	actionComplete   = "complete"
	actionFail       = "fail"
	actionTimeout    = "timeout"
	actionSeconded   = "seconded"
	actionInvalid    = "invalid"
	actionDeactivate = "deactivate"
)

var (
	ErrUnknownCollator     = errors.New("unknown collator")
	ErrDuplicateCollator   = errors.New("duplicate collator name")
	ErrDuplicateLeaf       = errors.New("duplicate relay parent")
	ErrCollatorRequired    = errors.New("collator is required")
	ErrInvalidCollatorPeer = errors.New("invalid collator peer id")
)

// Scenario is a sequence of steps driving the validator side of the collator protocol.
type Scenario struct {
	ClaimQueueSupport bool             `toml:"claim-queue-support"`
	Core              uint32           `toml:"core"`
	Mode              ModeConfig       `toml:"mode"`
	Leaves            []LeafConfig     `toml:"leaves" validate:"required,min=1,dive"`
	Collators         []CollatorConfig `toml:"collators" validate:"dive"`
	Steps             []StepConfig     `toml:"steps" validate:"required,min=1,dive"`

	collators map[string]collator
}

// ModeConfig is the asynchronous backing configuration of a relay parent.
type ModeConfig struct {
	Enabled            bool `toml:"enabled"`
	MaxCandidateDepth  uint `toml:"max-candidate-depth"`
	AllowedAncestryLen uint `toml:"allowed-ancestry-len"`
}

func (m ModeConfig) prospectiveParachainsMode() parachaintypes.ProspectiveParachainsMode {
	return parachaintypes.ProspectiveParachainsMode{
		IsEnabled:          m.Enabled,
		MaxCandidateDepth:  m.MaxCandidateDepth,
		AllowedAncestryLen: m.AllowedAncestryLen,
	}
}

// LeafConfig is a relay parent and its claim queue, indexed by core.
type LeafConfig struct {
	RelayParent common.Hash `toml:"relay-parent" validate:"required"`
	ClaimQueue  [][]uint32  `toml:"claim-queue"`
	// Mode overrides the scenario mode for this relay parent.
	Mode *ModeConfig `toml:"mode"`
}

func (l LeafConfig) claimQueue() parachaintypes.ClaimQueue {
	claimQueue := make(parachaintypes.ClaimQueue, len(l.ClaimQueue))
	for core, paraIDs := range l.ClaimQueue {
		queue := make([]parachaintypes.ParaID, len(paraIDs))
		for i, paraID := range paraIDs {
			queue[i] = parachaintypes.ParaID(paraID)
		}
		claimQueue[parachaintypes.CoreIndex(core)] = queue
	}
	return claimQueue
}

// CollatorConfig describes a collator. Its id is the sr25519 public key derived from the seed.
type CollatorConfig struct {
	Name string `toml:"name" validate:"required"`
	Seed string `toml:"seed" validate:"required"`
	Para uint32 `toml:"para"`
	Peer string `toml:"peer"`
}

// StepConfig is a single action applied to the validator side.
type StepConfig struct {
	Action      string      `toml:"action" validate:"required,oneof=activate advertise complete fail timeout seconded invalid deactivate"` //nolint:lll
	RelayParent common.Hash `toml:"relay-parent" validate:"required"`
	Collator    string      `toml:"collator"`
	Candidate   common.Hash `toml:"candidate"`
	// Expect is checked against the step result: "none", "fetch:<collator>",
	// "fetch:<collator>:<candidate hash>" or "error:<message part>".
	Expect string `toml:"expect"`
}

type collator struct {
	id     parachaintypes.CollatorID
	peerID peer.ID
	paraID parachaintypes.ParaID
}

// loadScenario reads and validates the scenario TOML file.
func loadScenario(path string) (scenario *Scenario, err error) {
	fp, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("finding scenario file: %w", err)
	}

	/* #nosec */
	f, err := os.Open(filepath.Clean(fp))
	if err != nil {
		return nil, fmt.Errorf("opening scenario file: %w", err)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("closing scenario file: %w", closeErr)
		}
	}()

	scenario = new(Scenario)
	if err = toml.NewDecoder(f).Decode(scenario); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}

	if err = scenario.init(); err != nil {
		return nil, err
	}
	return scenario, nil
}

// init validates the scenario and derives the collator identities.
func (s *Scenario) init() error {
	validate := validator.New()
	validate.RegisterCustomTypeFunc(common.HashValidator, common.Hash{})
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validating scenario: %w", err)
	}

	leaves := make(map[common.Hash]struct{}, len(s.Leaves))
	for _, leaf := range s.Leaves {
		if _, ok := leaves[leaf.RelayParent]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLeaf, leaf.RelayParent)
		}
		leaves[leaf.RelayParent] = struct{}{}
	}

	s.collators = make(map[string]collator, len(s.Collators))
	for _, config := range s.Collators {
		if _, ok := s.collators[config.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCollator, config.Name)
		}

		c, err := newCollator(config)
		if err != nil {
			return fmt.Errorf("collator %s: %w", config.Name, err)
		}
		s.collators[config.Name] = c
	}

	for i, step := range s.Steps {
		switch step.Action {
		case actionActivate, actionSeconded, actionInvalid, actionDeactivate:
			continue
		}
		if step.Collator == "" {
			return fmt.Errorf("step %d: %s: %w", i, step.Action, ErrCollatorRequired)
		}
		if _, ok := s.collators[step.Collator]; !ok {
			return fmt.Errorf("step %d: %w: %s", i, ErrUnknownCollator, step.Collator)
		}
	}

	return nil
}

func newCollator(config CollatorConfig) (c collator, err error) {
	seed, err := common.Blake2bHash([]byte(config.Seed))
	if err != nil {
		return c, fmt.Errorf("hashing seed: %w", err)
	}

	miniSecretKey, err := schnorrkel.NewMiniSecretKeyFromRaw(seed)
	if err != nil {
		return c, fmt.Errorf("creating mini secret key: %w", err)
	}

	c.id = parachaintypes.CollatorID(miniSecretKey.Public().Encode())
	if err = c.id.Validate(); err != nil {
		return c, err
	}

	c.paraID = parachaintypes.ParaID(config.Para)
	if config.Peer == "" {
		c.peerID = peer.ID(config.Name)
		return c, nil
	}

	c.peerID, err = peer.Decode(config.Peer)
	if err != nil {
		return c, fmt.Errorf("%w: %s", ErrInvalidCollatorPeer, err)
	}
	return c, nil
}

// leaf returns the configuration of the relay parent.
func (s *Scenario) leaf(relayParent common.Hash) (LeafConfig, bool) {
	for _, leaf := range s.Leaves {
		if leaf.RelayParent == relayParent {
			return leaf, true
		}
	}
	return LeafConfig{}, false
}

// collatorName returns the scenario name of the collator id.
func (s *Scenario) collatorName(id parachaintypes.CollatorID) string {
	for name, c := range s.collators {
		if c.id == id {
			return name
		}
	}
	return id.String()
}

// String utilizes github.com/qdm12/gotree to create a printable tree
// of the scenario.
func (s *Scenario) String() string {
	return s.StringNode().String()
}

// StringNode returns a gotree compatible node for String methods.
func (s *Scenario) StringNode() *gotree.Node {
	node := gotree.New("Scenario")
	node.Appendf("Core: %d", s.Core)
	node.Appendf("Claim queue support: %t", s.ClaimQueueSupport)
	node.Appendf("Mode: %s", s.Mode.prospectiveParachainsMode())

	leavesNode := gotree.New("Leaves")
	for _, leaf := range s.Leaves {
		leafNode := leavesNode.Appendf("Relay parent %s", leaf.RelayParent.Short())
		for core, paraIDs := range leaf.ClaimQueue {
			leafNode.Appendf("Core %d: %v", core, paraIDs)
		}
		if leaf.Mode != nil {
			leafNode.Appendf("Mode: %s", leaf.Mode.prospectiveParachainsMode())
		}
	}
	node.AppendNode(leavesNode)

	collatorsNode := gotree.New("Collators")
	for _, config := range s.Collators {
		c := s.collators[config.Name]
		collatorNode := collatorsNode.Appendf("%s", config.Name)
		collatorNode.Appendf("Para: %d", c.paraID)
		collatorNode.Appendf("Collator id: %s", c.id)
		collatorNode.Appendf("Peer id: %s", c.peerID)
	}
	node.AppendNode(collatorsNode)

	node.Appendf("Steps: %d", len(s.Steps))
	return node
}
