// Package voter implements vote_if_able (§4.4a): the five-condition
// gate deciding whether this replica votes on its current proposal.
// Grounded on the teacher's
// consensus/hotstuff/voter/voter.go (Voter.ProduceVoteIfVotable), which
// checked safety, freshness and membership before signing; extended here
// with the VID/DA/null-block conditions this spec's richer pipeline adds.
package voter

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Voter evaluates vote_if_able against the current Store state.
type Voter struct {
	store     hotstuff.StoreReader
	committee hotstuff.Committee
	signer    hotstuff.SignerVerifier
	storage   hotstuff.StorageAdapter
	persister hotstuff.Persister
	bus       *hotstuff.EventBus
	log       zerolog.Logger
}

// New constructs a Voter wired against the given collaborators.
func New(store hotstuff.StoreReader, committee hotstuff.Committee, signer hotstuff.SignerVerifier, storage hotstuff.StorageAdapter, persister hotstuff.Persister, bus *hotstuff.EventBus, log zerolog.Logger) *Voter {
	return &Voter{
		store:     store,
		committee: committee,
		signer:    signer,
		storage:   storage,
		persister: persister,
		bus:       bus,
		log:       log.With().Str("component", "voter").Logger(),
	}
}

// VoteIfAble evaluates the five conditions from §4.4a against proposal
// and, if every one holds, signs and broadcasts a QuorumVote. Any failing
// condition returns a NoVoteError (logged by the caller at the
// appropriate level — debug for expected gating, never treated as a
// fault) rather than an error that would abort the caller's own flow.
func (v *Voter) VoteIfAble(proposal *model.Proposal) error {
	leaf := proposal.Leaf
	view := leaf.View
	self := v.committee.Self()

	// 1. Node is in the quorum membership at V.
	if !v.committee.HasStake(self) {
		return model.NoVoteError{Msg: "not a member of the quorum at this view"}
	}

	selfIdentity, err := v.committee.Identity(view, self)
	if err != nil {
		return model.NoVoteError{Msg: "could not resolve own identity"}
	}

	// 2. A VID share mapping for V exists, addressed to this node.
	share, ok := v.store.VIDShareFor(view, selfIdentity.PublicKey)
	if !ok {
		return model.NoVoteError{Msg: "no VID share for this view addressed to this node"}
	}

	// 3. If an upgrade interim covers V, the payload must be the null block.
	if decided := v.store.DecidedUpgradeCert(); decided != nil && decided.CoversView(view) {
		null := model.NullBlockCommitment(v.committee.TotalNodes())
		if leaf.Header.PayloadCommitment != null {
			return model.NoVoteError{Msg: "refusing to vote: upgrade interim requires the null-block payload"}
		}
	}

	// 4. A DA certificate for V exists, is signature-valid against the DA
	// membership, and matches the payload. This implementation's
	// Committee abstraction serves both the quorum and the DA committee
	// (see DESIGN.md), so the same Identities snapshot verifies it.
	daCert, ok := v.store.DACert(view)
	if !ok {
		return model.NoVoteError{Msg: "no DA certificate for this view"}
	}
	daIdentities, err := v.committee.Identities(view)
	if err != nil {
		return model.NoVoteError{Msg: "could not resolve DA committee membership"}
	}
	if err := v.signer.VerifyQC(daCert, daIdentities); err != nil {
		return model.NoVoteError{Msg: "DA certificate signature is invalid"}
	}
	if daCert.BlockID != leaf.Header.PayloadCommitment {
		return model.NoVoteError{Msg: "DA certificate does not match the proposed payload commitment"}
	}

	// 5. The leaf's declared parent binds to the block the justify-QC
	// actually attests: fetch the parent the QC points at and require its
	// recomputed commit equal the leaf's own ParentID. Fetching by
	// ParentID itself (as an earlier draft did) made this vacuous — it
	// only ever caught "parent missing", never "QC attests a different
	// block than ParentID claims".
	parent, ok := v.store.GetLeaf(leaf.QC.BlockID)
	if !ok {
		return model.NoVoteError{Msg: "justify-QC's block not found in store"}
	}
	if parent.ID() != leaf.ParentID {
		return model.NoVoteError{Msg: "parent commitment mismatch: justify-QC does not attest the leaf's declared parent"}
	}

	if err := v.checkNotAlreadyVoted(view); err != nil {
		return err
	}

	if err := v.storage.AppendVID(share); err != nil {
		return fmt.Errorf("could not persist own VID share: %w", err)
	}

	vote, err := v.signer.CreateVote(leaf, model.QuorumVoteKind)
	if err != nil {
		return fmt.Errorf("could not sign vote: %w", err)
	}

	if err := v.persister.PutVoted(view); err != nil {
		return fmt.Errorf("could not persist last voted view: %w", err)
	}

	v.bus.Publish(hotstuff.Event{Type: hotstuff.QuorumVoteSend, View: view, Vote: vote})
	v.log.Debug().Uint64("view", view).Msg("voted")
	return nil
}

func (v *Voter) checkNotAlreadyVoted(view uint64) error {
	lastVoted, err := v.persister.GetVoted()
	if err != nil {
		return fmt.Errorf("could not read last voted view: %w", err)
	}
	if view <= lastVoted {
		return model.NoVoteError{Msg: "already voted at or past this view"}
	}
	return nil
}
