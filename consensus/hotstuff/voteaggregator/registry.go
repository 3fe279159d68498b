package voteaggregator

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

type key struct {
	kind model.VoteKind
	view uint64
}

// Registry is the Vote Accumulator's dispatcher entry point: it routes an
// incoming vote to the accumulator for its (kind, view), creating one on
// the first vote seen and pruning them by view (finished ones included)
// via PruneByView, mirroring the teacher's VoteAggregator.PruneByView
// view-keyed GC.
type Registry struct {
	committee hotstuff.Committee
	signer    hotstuff.SignerVerifier
	bus       *hotstuff.EventBus
	log       zerolog.Logger

	highestPrunedView uint64
	accumulators      map[key]*Accumulator
}

// NewRegistry creates an empty Registry.
func NewRegistry(committee hotstuff.Committee, signer hotstuff.SignerVerifier, bus *hotstuff.EventBus, log zerolog.Logger) *Registry {
	return &Registry{
		committee:    committee,
		signer:       signer,
		bus:          bus,
		log:          log.With().Str("component", "voteaggregator").Logger(),
		accumulators: make(map[key]*Accumulator),
	}
}

// Submit routes vote to its (kind, view) accumulator, creating one if this
// is the first vote seen for that target. Stale votes (at or below the
// highest pruned view) are rejected with StaleVoteError (§4.2).
func (r *Registry) Submit(vote *model.Vote) error {
	if vote.View <= r.highestPrunedView {
		return model.StaleVoteError{Vote: vote, HighestPrunedView: r.highestPrunedView}
	}

	k := key{kind: vote.Kind, view: vote.View}
	acc, exists := r.accumulators[k]
	if !exists {
		identities, err := r.committee.Identities(vote.View)
		if err != nil {
			return fmt.Errorf("could not get committee identities: %w", err)
		}
		threshold := r.committee.Threshold(vote.View)

		acc, err = New(vote, identities, threshold, r.signer, r.log)
		if err != nil {
			return fmt.Errorf("could not create accumulator: %w", err)
		}
		if acc == nil {
			// invalid first vote: no accumulator created, nothing more to do
			return nil
		}
		r.accumulators[k] = acc
		if len(acc.votes) >= acc.threshold {
			// a threshold of one is already crossed by the first vote
			qc, err := r.signer.CreateQC(acc.votes)
			if err != nil {
				return fmt.Errorf("could not aggregate votes into certificate: %w", err)
			}
			acc.done = qc
			r.publishFormed(vote.Kind, qc)
		}
		return nil
	}

	qc, formed, err := acc.HandleVote(vote)
	if err != nil {
		return fmt.Errorf("could not handle vote: %w", err)
	}
	if formed {
		r.publishFormed(vote.Kind, qc)
	}
	return nil
}

func (r *Registry) publishFormed(kind model.VoteKind, qc *model.QuorumCertificate) {
	evtType := hotstuff.QCFormed
	if kind == model.UpgradeVoteKind {
		evtType = hotstuff.UpgradeCertificateFormed
	}
	r.bus.Publish(hotstuff.Event{
		Type: evtType,
		View: qc.View,
		QC:   qc,
	})
}

// PruneByView discards every accumulator at or below view, and raises the
// floor below which incoming votes are rejected as stale. Mirrors the
// teacher's VoteAggregator.PruneByView (§4.2).
func (r *Registry) PruneByView(view uint64) {
	if view <= r.highestPrunedView {
		return
	}
	for k := range r.accumulators {
		if k.view <= view {
			delete(r.accumulators, k)
		}
	}
	r.highestPrunedView = view
}

// Accumulators is the number of live (not-yet-pruned) accumulators,
// exposed for metrics and tests.
func (r *Registry) Accumulators() int {
	return len(r.accumulators)
}
