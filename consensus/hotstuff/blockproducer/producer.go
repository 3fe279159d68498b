// Package blockproducer implements publish_proposal (C4, §4.4): spawning
// a per-view sub-task that, after round_start_delay, builds and
// broadcasts a new proposal. Grounded on the teacher's
// consensus/hotstuff/blockproducer/block_producer.go
// (BlockProducer.MakeBlockProposal/makeBlockForView), adapted to this
// spec's richer precondition set (QC-consecutive OR view-change evidence,
// plus a pending commitment-and-metadata or the interim null block).
package blockproducer

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Input bundles everything publish_proposal needs to decide whether it
// can build a proposal for targetView, supplied by the dispatcher (C6)
// which owns this state.
type Input struct {
	TargetView         uint64
	HighQC             *model.QuorumCertificate
	ViewChangeEvid     *model.ViewChangeEvidence
	Commitment         *model.CommitmentAndMetadata
	FormedUpgradeCert  *model.UpgradeCertificate
	DecidedUpgradeCert *model.UpgradeCertificate

	// OnProduced is called once run has confirmed every precondition in
	// §4.4 step 2 holds and it is committed to building and broadcasting
	// the proposal, reporting which of the dispatcher-owned inputs were
	// actually consumed so the caller can clear them (§4.4 step 4) —
	// clearing them at invocation time instead would wipe state a later
	// retry for the same view still needs if this attempt's own
	// preconditions never pan out.
	OnProduced func(consumedCommitment, consumedEvidence bool)
}

// Producer runs publish_proposal, deduplicating concurrent invocations
// for the same target view.
type Producer struct {
	committee hotstuff.Committee
	signer    hotstuff.SignerVerifier
	bus       *hotstuff.EventBus
	delay     time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	inflight map[uint64]struct{}
}

// New creates a Producer that sleeps roundStartDelay before constructing
// each proposal (§4.4, step 1: liveness-slack for payload arrival).
func New(committee hotstuff.Committee, signer hotstuff.SignerVerifier, bus *hotstuff.EventBus, roundStartDelay time.Duration, log zerolog.Logger) *Producer {
	return &Producer{
		committee: committee,
		signer:    signer,
		bus:       bus,
		delay:     roundStartDelay,
		log:       log.With().Str("component", "blockproducer").Logger(),
		inflight:  make(map[uint64]struct{}),
	}
}

// Publish spawns the per-view sub-task for in.TargetView. A second call
// for the same view while the first is still running is a no-op (§4.4,
// "only one producer sub-task per target_view is permitted").
func (p *Producer) Publish(parent *model.Leaf, in Input) {
	p.mu.Lock()
	if _, running := p.inflight[in.TargetView]; running {
		p.mu.Unlock()
		return
	}
	p.inflight[in.TargetView] = struct{}{}
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.inflight, in.TargetView)
			p.mu.Unlock()
		}()
		if err := p.run(parent, in); err != nil {
			p.log.Error().Err(err).Uint64("view", in.TargetView).Msg("failed to produce proposal")
		}
	}()
}

// Cancel drops the in-flight marker for view, allowing Publish to accept a
// fresh invocation — used when advancing last_decided_view past view
// makes an outstanding production attempt moot (§5 cancellation policy;
// the already-running goroutine is left to finish, per "cancellation is
// best-effort").
func (p *Producer) Cancel(view uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, view)
}

func (p *Producer) run(parent *model.Leaf, in Input) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	leader, err := p.committee.Leader(in.TargetView)
	if err != nil {
		return fmt.Errorf("could not resolve leader: %w", err)
	}
	if !p.committee.IsSelf(leader) {
		return nil
	}

	var justify *model.QuorumCertificate
	var evidence *model.ViewChangeEvidence
	consumedEvidence := false
	switch {
	case in.HighQC != nil && in.HighQC.View+1 == in.TargetView:
		justify = in.HighQC
	case in.ViewChangeEvid != nil && in.ViewChangeEvid.View() == in.TargetView:
		justify = in.HighQC
		evidence = in.ViewChangeEvid
		consumedEvidence = true
	default:
		p.log.Debug().Uint64("view", in.TargetView).Msg("no consecutive QC or view-change evidence yet, not producing")
		return nil
	}

	// An upgrade interim covering this view lets the producer fall back
	// to the canonical null-block payload even with no commitment from
	// the builder yet (§4.4, step 2's parenthetical); otherwise a real,
	// view-matched commitment is required.
	var header model.BlockHeader
	consumedCommitment := false
	switch {
	case in.Commitment != nil && in.Commitment.BlockView == in.TargetView:
		header = model.BlockHeader{
			PayloadCommitment: in.Commitment.PayloadCommitment,
			BuilderCommitment: in.Commitment.BuilderCommitment,
			Metadata:          in.Commitment.Metadata,
		}
		consumedCommitment = true
	case in.DecidedUpgradeCert != nil && in.DecidedUpgradeCert.CoversView(in.TargetView):
		header = model.BlockHeader{PayloadCommitment: model.NullBlockCommitment(p.committee.TotalNodes())}
	default:
		p.log.Debug().Uint64("view", in.TargetView).Msg("no commitment-and-metadata for this view yet, not producing")
		return nil
	}

	// Every precondition holds: this call is now committed to building
	// and broadcasting a proposal. Report back which dispatcher-owned
	// inputs were consumed so they can be cleared (§4.4 step 4) — this is
	// the last point run can still bail out via an error below, but an
	// error past here only fails signing, not precondition evaluation.
	if in.OnProduced != nil {
		in.OnProduced(consumedCommitment, consumedEvidence)
	}

	leaf := &model.Leaf{
		View:       in.TargetView,
		ParentID:   parent.ID(),
		ProposerID: p.committee.Self(),
		Header:     header,
		QC:         justify,
	}

	if in.FormedUpgradeCert != nil && in.FormedUpgradeCert.DecideBy >= in.TargetView {
		leaf.UpgradeCert = in.FormedUpgradeCert
	}

	proposal, err := p.signer.CreateProposal(leaf, evidence)
	if err != nil {
		return fmt.Errorf("could not sign proposal: %w", err)
	}

	p.bus.Publish(hotstuff.Event{Type: hotstuff.QuorumProposalSend, View: in.TargetView, Proposal: proposal})
	return nil
}
