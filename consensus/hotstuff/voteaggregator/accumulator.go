// Package voteaggregator implements the Vote Accumulator (C2, §4.2): one
// accumulator per active (vote-kind, view), collecting signed votes until
// a quorum threshold is crossed, then emitting exactly one certificate.
// Grounded on the teacher's
// engine/consensus/hotstuff/{vote_aggregator.go,pending_status.go}, which
// accumulated per-block voting status with the same store-first-vote,
// reject-duplicate-signer, exactly-once-QC shape; simplified here to the
// spec's per-(kind,view) accumulator rather than the teacher's per-block
// registry spanning the whole fork set.
package voteaggregator

import (
	"fmt"

	"github.com/jrick/bitset"
	"github.com/rs/zerolog"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Accumulator collects votes for a single (Kind, View, BlockID) target
// until the committee's threshold is met.
type Accumulator struct {
	kind    model.VoteKind
	view    uint64
	blockID flow.Identifier

	signer     hotstuff.SignerVerifier
	identities flow.IdentityList
	threshold  int
	indexOf    map[flow.Identifier]int

	signers bitset.Bytes
	votes   []*model.Vote
	done    *model.QuorumCertificate

	log zerolog.Logger
}

// New validates firstVote (signature and committee membership) and, if
// valid, returns a new Accumulator seeded with it. Returns nil, nil if
// firstVote is invalid — the spec treats an invalid first vote the same
// as "no accumulator created", not as an error to propagate (§4.2).
func New(firstVote *model.Vote, identities flow.IdentityList, threshold int, signer hotstuff.SignerVerifier, log zerolog.Logger) (*Accumulator, error) {
	a := &Accumulator{
		kind:       firstVote.Kind,
		view:       firstVote.View,
		blockID:    firstVote.BlockID,
		signer:     signer,
		identities: identities,
		threshold:  threshold,
		indexOf:    make(map[flow.Identifier]int, len(identities)),
		signers:    bitset.NewBytes(len(identities)),
		log:        log.With().Uint64("view", firstVote.View).Str("kind", firstVote.Kind.CertificateKind().String()).Logger(),
	}
	for i, identity := range identities {
		a.indexOf[identity.NodeID] = i
	}

	ok, err := a.addVote(firstVote)
	if err != nil {
		return nil, fmt.Errorf("could not validate first vote: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return a, nil
}

// HandleVote accepts a further vote for this accumulator's (kind, view).
// A vote for a different target (blockID) at the same (kind, view), or a
// second vote from a signer already seen, is silently ignored — per §4.2
// this is not treated as evidence of equivocation. Returns the formed
// certificate and true exactly once, on the event that crosses threshold.
func (a *Accumulator) HandleVote(vote *model.Vote) (*model.QuorumCertificate, bool, error) {
	if a.done != nil {
		return a.done, false, nil
	}
	if vote.Kind != a.kind || vote.View != a.view {
		return nil, false, nil
	}
	if vote.BlockID != a.blockID {
		a.log.Debug().Msg("ignoring vote for a different block at this view")
		return nil, false, nil
	}

	ok, err := a.addVote(vote)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	if len(a.votes) < a.threshold {
		return nil, false, nil
	}

	qc, err := a.signer.CreateQC(a.votes)
	if err != nil {
		return nil, false, fmt.Errorf("could not aggregate votes into certificate: %w", err)
	}
	a.done = qc
	return qc, true, nil
}

// addVote validates membership/signature and records the vote, returning
// false (no error) for a duplicate signer rather than rejecting outright.
func (a *Accumulator) addVote(vote *model.Vote) (bool, error) {
	idx, known := a.indexOf[vote.SignerID]
	if !known {
		return false, nil
	}
	if a.signers.Get(idx) {
		return false, nil
	}
	identity := a.identities[idx]
	err := a.signer.VerifyVote(vote, identity)
	if err != nil {
		return false, nil
	}
	a.signers.Set(idx)
	a.votes = append(a.votes, vote)
	return true, nil
}

// Done reports whether this accumulator has already emitted its
// certificate. Once done, HandleVote ignores further votes.
func (a *Accumulator) Done() bool {
	return a.done != nil
}
