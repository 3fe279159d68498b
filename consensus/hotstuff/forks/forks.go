// Package forks implements the Proposal Validator / Chain Extender (C3,
// §4.3): the three-chain walk that turns a validated proposal into
// locked_view/last_decided_view advances, Decide notifications and
// garbage collection. Grounded on the teacher's
// engine/consensus/hotstuff/forks/forks.go (AddBlock/MakeForkChoice
// walking the fork tree to find the committed prefix) and
// forks/forkchoice/newest.go's ErrorMissingBlock handling, adapted from a
// newest-QC fork choice to this spec's fixed three-chain commit rule.
package forks

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	storepkg "github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/store"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Result reports what a Validator.Process call accomplished, so the
// dispatcher (C6) can run its Phase 3 follow-through (§4.3) without
// re-deriving it.
type Result struct {
	CommitReached bool
	NewLockedView uint64

	DecideReached bool
	OldAnchor     uint64
	NewAnchorView uint64
	LeafChain     []*hotstuff.LeafInfo
	DecideQC      *model.QuorumCertificate
	BlockSize     int

	DecidedUpgradeCert *model.UpgradeCertificate
}

// Validator runs the chain walk described in §4.3 against a store.Store.
type Validator struct {
	store   *storepkg.Store
	selfKey flow.PublicKey
	metrics hotstuff.Metrics
	log     zerolog.Logger
}

// New creates a Validator over store, publishing metrics through metrics.
// selfKey is used to recover this node's own VID share when materializing
// a decided leaf's LeafInfo (§4.3 Phase 1).
func New(store *storepkg.Store, selfKey flow.PublicKey, metrics hotstuff.Metrics, log zerolog.Logger) *Validator {
	return &Validator{
		store:   store,
		selfKey: selfKey,
		metrics: metrics,
		log:     log.With().Str("component", "forks").Logger(),
	}
}

// Process runs the three-chain walk for a newly-validated proposal. A
// missing ancestor or non-consecutive parent aborts the walk silently —
// Process returns a zero Result and no error, matching §4.3's "the
// proposal remains current and voting may still proceed".
func (v *Validator) Process(proposal *model.Proposal) (Result, error) {
	leaf := proposal.Leaf
	parentView := leaf.QC.View

	if parentView+1 != leaf.View {
		v.log.Debug().Uint64("view", leaf.View).Msg("parent link not consecutive, skipping chain walk")
		return Result{}, nil
	}

	result, err := v.walk(leaf)
	if err != nil {
		var missing model.MissingBlockError
		if errors.As(err, &missing) {
			v.log.Debug().Err(err).Msg("chain walk aborted: missing ancestor")
			return Result{}, nil
		}
		return Result{}, err
	}

	if !result.CommitReached && !result.DecideReached {
		return result, nil
	}

	err = v.store.Mutate(func(tx *storepkg.Tx) error {
		if result.CommitReached {
			tx.SetLockedView(result.NewLockedView)
		}
		if result.DecideReached {
			result.OldAnchor = tx.LastDecidedView()
			delta := tx.SetLastDecidedView(result.NewAnchorView)
			result.BlockSize = countUniqueCommits(result.LeafChain)
			if result.DecidedUpgradeCert != nil {
				tx.SetDecidedUpgradeCert(result.DecidedUpgradeCert)
			}
			tx.CollectGarbage(result.OldAnchor, result.NewAnchorView)
			if v.metrics != nil {
				v.metrics.Decided(result.NewAnchorView, time.Now(), delta)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("could not commit chain walk result: %w", err)
	}

	return result, nil
}

// walk performs Phase 1 (the read-only chain traversal). It holds no
// locks itself; callers run it before entering Mutate so the exclusive
// section only covers the commit, not the walk.
func (v *Validator) walk(leaf *model.Leaf) (Result, error) {
	var result Result
	var decideQCCandidate *model.QuorumCertificate
	var reverseChain []*hotstuff.LeafInfo // collected high-view-first, reversed before returning
	var warnings *multierror.Error
	chainLength := 0
	previous := leaf
	first := true

	walkErr := v.store.VisitLeafAncestors(leaf.ParentID, storepkg.Exclusive(v.store.LastDecidedView()), true, func(ancestor *model.Leaf) (bool, error) {
		if first {
			chainLength = 1
			first = false
		} else {
			if ancestor.View+1 != previous.View {
				return true, nil
			}
			chainLength++
		}

		switch chainLength {
		case 2:
			result.CommitReached = true
			result.NewLockedView = ancestor.View
			decideQCCandidate = ancestor.QC
		case 3:
			result.DecideReached = true
			result.NewAnchorView = ancestor.View
		}

		if chainLength >= 3 {
			info := &hotstuff.LeafInfo{Leaf: ancestor}
			if share, ok := v.store.VIDShareFor(ancestor.View, v.selfKey); ok {
				info.VIDShare = share
			}
			if payload, ok := v.store.SavedPayload(ancestor.View); ok {
				info.Payload = payload
			}
			reverseChain = append(reverseChain, info)

			if chainLength == 3 {
				result.DecideQC = decideQCCandidate
			}

			if ancestor.UpgradeCert != nil {
				if ancestor.UpgradeCert.DecideBy >= leaf.View {
					result.DecidedUpgradeCert = ancestor.UpgradeCert
				} else {
					warnings = multierror.Append(warnings, fmt.Errorf(
						"discarding expired upgrade certificate at view %d: decide_by %d < %d",
						ancestor.View, ancestor.UpgradeCert.DecideBy, leaf.View))
				}
			}
		}

		previous = ancestor
		return false, nil
	})
	if walkErr != nil {
		return Result{}, walkErr
	}
	// Discarded-cert warnings accumulate rather than aborting the walk
	// (§7: these are non-fatal); surfaced together so a run with several
	// stale embedded certs produces one log line instead of a flood.
	if warnings.ErrorOrNil() != nil {
		v.log.Warn().Err(warnings).Msg("chain walk completed with warnings")
	}

	// reverseChain is high-view-first (walk order); the application
	// stream expects leaf_chain in ascending view order (§8, scenario 6).
	for i := len(reverseChain) - 1; i >= 0; i-- {
		result.LeafChain = append(result.LeafChain, reverseChain[i])
	}

	return result, nil
}

func countUniqueCommits(chain []*hotstuff.LeafInfo) int {
	commits := make(map[flow.Identifier]struct{})
	for _, info := range chain {
		if info.Payload == nil {
			continue
		}
		for commit := range info.Payload.TxCommitments() {
			commits[commit] = struct{}{}
		}
	}
	return len(commits)
}
