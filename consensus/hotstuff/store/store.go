// Package store implements the Consensus State Store (C1): the single,
// lock-protected record of high-QC, locked/decided views, saved
// leaves/payloads, VID shares and DA certificates that every other
// component reads or mutates (§4.1).
//
// Go's standard library has no upgradable-read primitive. Mutate runs a
// function under the store's single exclusive lock, so a read of
// last_decided_view and a conditional write of it inside one Mutate call
// are one atomic step. forks.Validator uses Mutate for the commit only:
// its ancestor walk runs beforehand through the shared-lock readers, so
// the walk and the commit are two separate critical sections and a writer
// can run between them. Pure read accessors use a shared RLock and are
// cheap and independent of Mutate's duration.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Store is the Consensus State Store (C1).
type Store struct {
	mu sync.RWMutex

	highQC          *model.QuorumCertificate
	lockedView      uint64
	lastDecidedView uint64

	savedLeaves   map[flow.Identifier]*model.Leaf
	savedPayloads map[uint64]*model.Payload
	savedDACerts  map[uint64]*model.QuorumCertificate
	vidShares     map[uint64]map[string]*model.VIDShare

	decidedUpgradeCert *model.UpgradeCertificate

	metrics hotstuff.Metrics
	log     zerolog.Logger
}

// New creates a Store seeded with the genesis leaf and its QC.
func New(genesis *model.Leaf, genesisQC *model.QuorumCertificate, metrics hotstuff.Metrics, log zerolog.Logger) *Store {
	s := &Store{
		highQC:        genesisQC,
		savedLeaves:   make(map[flow.Identifier]*model.Leaf),
		savedPayloads: make(map[uint64]*model.Payload),
		savedDACerts:  make(map[uint64]*model.QuorumCertificate),
		vidShares:     make(map[uint64]map[string]*model.VIDShare),
		metrics:       metrics,
		log:           log.With().Str("component", "store").Logger(),
	}
	s.savedLeaves[genesis.ID()] = genesis
	return s
}

// --- read accessors (shared lock) ---

func (s *Store) HighQC() *model.QuorumCertificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highQC
}

func (s *Store) LockedView() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lockedView
}

func (s *Store) LastDecidedView() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastDecidedView
}

func (s *Store) GetLeaf(id flow.Identifier) (*model.Leaf, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leaf, ok := s.savedLeaves[id]
	return leaf, ok
}

func (s *Store) SavedPayload(view uint64) (*model.Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.savedPayloads[view]
	return p, ok
}

func (s *Store) DACert(view uint64) (*model.QuorumCertificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.savedDACerts[view]
	return c, ok
}

func (s *Store) VIDShareFor(view uint64, recipient flow.PublicKey) (*model.VIDShare, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRecipient, ok := s.vidShares[view]
	if !ok {
		return nil, false
	}
	share, ok := byRecipient[recipient.String()]
	return share, ok
}

func (s *Store) DecidedUpgradeCert() *model.UpgradeCertificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decidedUpgradeCert
}

// --- simple mutations (exclusive lock, single field each) ---

// SetHighQC installs qc as high_qc if it is newer than the current one;
// high_qc.view only ever advances (invariant 6, §3).
func (s *Store) SetHighQC(qc *model.QuorumCertificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.highQC == nil || qc.View > s.highQC.View {
		s.highQC = qc
	}
}

func (s *Store) AddLeaf(leaf *model.Leaf) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedLeaves[leaf.ID()] = leaf
}

func (s *Store) SetPayload(view uint64, payload *model.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedPayloads[view] = payload
}

func (s *Store) SetDACert(view uint64, cert *model.QuorumCertificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedDACerts[view] = cert
}

func (s *Store) SetVIDShare(share *model.VIDShare) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRecipient, ok := s.vidShares[share.View]
	if !ok {
		byRecipient = make(map[string]*model.VIDShare)
		s.vidShares[share.View] = byRecipient
	}
	byRecipient[share.Recipient.String()] = share
}

func (s *Store) SetDecidedUpgradeCert(cert *model.UpgradeCertificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decidedUpgradeCert = cert
}

// --- ancestor walk ---

// Terminator bounds a VisitLeafAncestors walk.
type Terminator struct {
	View      uint64
	Inclusive bool
}

// Exclusive stops the walk once it reaches view, without visiting it.
func Exclusive(view uint64) Terminator { return Terminator{View: view, Inclusive: false} }

// InclusiveTerminator stops the walk after visiting view.
func InclusiveTerminator(view uint64) Terminator { return Terminator{View: view, Inclusive: true} }

// Visitor is invoked once per ancestor during a walk; returning stop=true
// ends the walk early without error.
type Visitor func(leaf *model.Leaf) (stop bool, err error)

// VisitLeafAncestors walks the parent-commit chain starting at the leaf
// identified by from, invoking visitor on each ancestor until terminator
// is reached (§4.1). Held under a shared lock for its duration (a
// read-only operation does not need Mutate's exclusivity).
func (s *Store) VisitLeafAncestors(from flow.Identifier, terminator Terminator, includeFrom bool, visitor Visitor) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visitLeafAncestorsLocked(from, terminator, includeFrom, visitor)
}

func (s *Store) visitLeafAncestorsLocked(from flow.Identifier, terminator Terminator, includeFrom bool, visitor Visitor) error {
	current, ok := s.savedLeaves[from]
	if !ok {
		return fmt.Errorf("cannot walk ancestors: %w", model.MissingBlockError{BlockID: from})
	}

	if includeFrom {
		if reachedTerminator(current.View, terminator) && !terminator.Inclusive {
			return nil
		}
		stop, err := visitor(current)
		if err != nil || stop {
			return err
		}
		if terminator.Inclusive && current.View == terminator.View {
			return nil
		}
	}

	for {
		if current.View <= terminator.View && !terminator.Inclusive {
			return nil
		}
		parent, ok := s.savedLeaves[current.ParentID]
		if !ok {
			return fmt.Errorf("cannot walk ancestors: %w", model.MissingBlockError{View: current.View - 1, BlockID: current.ParentID})
		}
		current = parent

		if terminator.Inclusive && current.View < terminator.View {
			return nil
		}
		if !terminator.Inclusive && current.View <= terminator.View {
			return nil
		}

		stop, err := visitor(current)
		if err != nil || stop {
			return err
		}
		if terminator.Inclusive && current.View == terminator.View {
			return nil
		}
	}
}

func reachedTerminator(view uint64, terminator Terminator) bool {
	if terminator.Inclusive {
		return view < terminator.View
	}
	return view <= terminator.View
}

// --- the chain-extension critical section ---

// Tx exposes Store's state, unguarded, to a function running inside
// Mutate's exclusive critical section.
type Tx struct {
	s *Store
}

func (tx *Tx) HighQC() *model.QuorumCertificate    { return tx.s.highQC }
func (tx *Tx) LockedView() uint64                  { return tx.s.lockedView }
func (tx *Tx) LastDecidedView() uint64             { return tx.s.lastDecidedView }
func (tx *Tx) DecidedUpgradeCert() *model.UpgradeCertificate { return tx.s.decidedUpgradeCert }

func (tx *Tx) GetLeaf(id flow.Identifier) (*model.Leaf, bool) {
	leaf, ok := tx.s.savedLeaves[id]
	return leaf, ok
}

func (tx *Tx) VisitLeafAncestors(from flow.Identifier, terminator Terminator, includeFrom bool, visitor Visitor) error {
	return tx.s.visitLeafAncestorsLocked(from, terminator, includeFrom, visitor)
}

// SetLockedView advances locked_view; the caller is responsible for never
// decreasing it (invariant 1, §3).
func (tx *Tx) SetLockedView(view uint64) {
	tx.s.lockedView = view
}

// SetLastDecidedView advances last_decided_view and reports the views
// elapsed since the previous decide, used for the views_per_decide metric.
// The Open Question in §9 about whether this should be measured before or
// after the overwrite is resolved here explicitly: the delta is captured
// against the *old* value, before this call mutates it, which is what the
// metric is meant to represent (see DESIGN.md).
func (tx *Tx) SetLastDecidedView(view uint64) uint64 {
	delta := view - tx.s.lastDecidedView
	tx.s.lastDecidedView = view
	return delta
}

func (tx *Tx) SetDecidedUpgradeCert(cert *model.UpgradeCertificate) {
	tx.s.decidedUpgradeCert = cert
}

// CollectGarbage drops leaves, payloads, VID shares and DA certs with
// view < newAnchor, preserving the entry exactly at newAnchor (§4.1).
func (tx *Tx) CollectGarbage(oldAnchor, newAnchor uint64) {
	s := tx.s
	for id, leaf := range s.savedLeaves {
		if leaf.View < newAnchor {
			delete(s.savedLeaves, id)
		}
	}
	for view := range s.savedPayloads {
		if view < newAnchor {
			delete(s.savedPayloads, view)
		}
	}
	for view := range s.savedDACerts {
		if view < newAnchor {
			delete(s.savedDACerts, view)
		}
	}
	for view := range s.vidShares {
		if view < newAnchor {
			delete(s.vidShares, view)
		}
	}
	s.log.Debug().Uint64("old_anchor", oldAnchor).Uint64("new_anchor", newAnchor).Msg("collected garbage")
}

// Mutate runs fn under the store's exclusive lock, giving it the ability
// to read then conditionally write locked_view/last_decided_view as one
// atomic step — the Go substitute for an upgradable read lock (§9).
func (s *Store) Mutate(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

// RecordDecide updates the decide-related metrics (§4.3 Phase 2).
func (s *Store) RecordDecide(view uint64, viewsPerDecide uint64) {
	if s.metrics != nil {
		s.metrics.Decided(view, time.Now(), viewsPerDecide)
	}
}
