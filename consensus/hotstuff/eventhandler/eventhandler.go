// Package eventhandler implements the Replica Event Dispatcher (C6,
// §4.6): the single-entry, non-reentrant routing loop that owns
// current_proposal, the per-view task registry, the vote-collector
// slots, the formed/decided upgrade certificates and the process-wide
// version. Grounded on the teacher's module/hotstuff.go `HotStuff`
// top-level interface (Start/SubmitProposal/SubmitVote) for the dispatch
// contract, and on engine/consensus/hotstuff/examples/notifications'
// pubsub pattern for the application event stream this package emits to.
package eventhandler

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/blockproducer"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/forks"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/notifications"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/pacemaker"
	storepkg "github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/store"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/voteaggregator"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/voter"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// viewTask is one entry of the per-view sub-task registry (§9's "ordered
// map keyed by view"); here backed by a deque so the oldest views sit at
// the front for the advance_to(V*) partition-and-cancel sweep.
type viewTask struct {
	view   uint64
	cancel func()
}

// EventHandler is the Replica Event Dispatcher (C6).
type EventHandler struct {
	store     *storepkg.Store
	validator *forks.Validator
	votes     *voteaggregator.Registry
	voter     *voter.Voter
	producer  *blockproducer.Producer
	pace      *pacemaker.Pacemaker
	committee hotstuff.Committee
	signer    hotstuff.SignerVerifier
	persister hotstuff.Persister
	network   hotstuff.Network
	bus       *hotstuff.EventBus
	consumer  notifications.Consumer
	metrics   hotstuff.Metrics
	version   *atomic.Uint64
	log       zerolog.Logger

	mu                sync.Mutex
	currentProposal   *model.Proposal
	formedUpgradeCert *model.UpgradeCertificate
	proposalCert      *model.ViewChangeEvidence
	pendingCommitment *model.CommitmentAndMetadata
	tasks             deque.Deque

	events <-chan hotstuff.Event
	done   chan struct{}
}

// New wires an EventHandler against its collaborators. Start must be
// called to begin consuming from the event bus.
func New(
	store *storepkg.Store,
	validator *forks.Validator,
	votes *voteaggregator.Registry,
	vtr *voter.Voter,
	producer *blockproducer.Producer,
	pace *pacemaker.Pacemaker,
	committee hotstuff.Committee,
	signer hotstuff.SignerVerifier,
	persister hotstuff.Persister,
	network hotstuff.Network,
	bus *hotstuff.EventBus,
	consumer notifications.Consumer,
	metrics hotstuff.Metrics,
	version *atomic.Uint64,
	log zerolog.Logger,
) *EventHandler {
	return &EventHandler{
		store:     store,
		validator: validator,
		votes:     votes,
		voter:     vtr,
		producer:  producer,
		pace:      pace,
		committee: committee,
		signer:    signer,
		persister: persister,
		network:   network,
		bus:       bus,
		consumer:  consumer,
		metrics:   metrics,
		version:   version,
		log:       log.With().Str("component", "eventhandler").Logger(),
		done:      make(chan struct{}),
	}
}

// Start subscribes to bus and runs the dispatch loop on a dedicated
// goroutine until Shutdown is received. Returns immediately, mirroring
// the teacher's `HotStuff.Start() (exit func(), done <-chan struct{})`.
func (h *EventHandler) Start() (exit func(), done <-chan struct{}) {
	ch := h.bus.Subscribe()
	h.events = ch
	go h.run()
	return func() { h.bus.Publish(hotstuff.Event{Type: hotstuff.Shutdown}) }, h.done
}

// run is the single logical task processing events strictly in arrival
// order; no handler below may yield back into run concurrently (§5).
func (h *EventHandler) run() {
	defer close(h.done)
	for event := range h.events {
		h.dispatch(event)
		if event.Type == hotstuff.Shutdown {
			return
		}
	}
}

func (h *EventHandler) dispatch(event hotstuff.Event) {
	switch event.Type {
	case hotstuff.QuorumProposalRecv:
		h.onQuorumProposalRecv(event)
	case hotstuff.QuorumProposalValidated:
		h.onQuorumProposalValidated(event)
	case hotstuff.QuorumVoteRecv:
		h.onVoteRecv(event)
	case hotstuff.TimeoutVoteRecv:
		h.onVoteRecv(event)
	case hotstuff.QCFormed:
		h.onQCFormed(event)
	case hotstuff.UpgradeCertificateFormed:
		h.onUpgradeCertificateFormed(event)
	case hotstuff.DACertificateRecv:
		h.onDACertificateRecv(event)
	case hotstuff.VIDShareRecv:
		h.onVIDShareRecv(event)
	case hotstuff.ViewChange:
		h.onViewChange(event)
	case hotstuff.Timeout:
		h.pace.Timeout(event.View)
	case hotstuff.SendPayloadCommitmentAndMetadata:
		h.onSendCommitmentAndMetadata(event)
	case hotstuff.ViewSyncFinalizeCertificate2Recv:
		h.onViewSyncFinalize(event)
	case hotstuff.Shutdown:
		h.log.Info().Msg("shutting down")
	default:
		h.log.Warn().Str("event", event.Type.String()).Msg("unrecognized event")
	}
}

// onQuorumProposalRecv validates a freshly received proposal via the
// validator collaborator; on success it becomes current_proposal and
// vote_if_able is attempted (§4.6 row 1). Validation here is membership,
// signature and a check that the justify-QC attests the declared parent —
// the three-chain walk is deferred to
// QuorumProposalValidated so it only runs once the proposal is accepted.
func (h *EventHandler) onQuorumProposalRecv(event hotstuff.Event) {
	proposal := event.Proposal
	if proposal == nil {
		return
	}
	proposer, err := h.committee.Identity(proposal.View(), proposal.Leaf.ProposerID)
	if err != nil {
		h.log.Warn().Err(err).Msg("dropping proposal: unknown proposer")
		return
	}
	if err := h.signer.VerifyProposal(proposal, proposer); err != nil {
		h.log.Warn().Err(err).Msg("dropping proposal: invalid signature")
		return
	}
	if proposal.Leaf.QC.BlockID != proposal.Leaf.ParentID {
		h.log.Warn().Uint64("view", proposal.View()).Msg("dropping proposal: justify-QC does not attest the declared parent")
		return
	}

	h.pace.UpdateView(proposal.View())

	h.mu.Lock()
	h.currentProposal = proposal
	h.mu.Unlock()

	h.store.AddLeaf(proposal.Leaf)
	h.bus.Publish(hotstuff.Event{Type: hotstuff.QuorumProposalValidated, View: proposal.View(), Proposal: proposal})
	h.tryVote(proposal)
}

// onQuorumProposalValidated runs the C3 chain walk and, on success, the
// Phase 3 follow-through (§4.3).
func (h *EventHandler) onQuorumProposalValidated(event hotstuff.Event) {
	proposal := event.Proposal
	if proposal == nil {
		return
	}
	result, err := h.validator.Process(proposal)
	if err != nil {
		h.log.Error().Err(err).Msg("chain walk failed")
		return
	}
	if result.DecideReached {
		h.bus.Publish(hotstuff.Event{Type: hotstuff.LeafDecided, View: result.NewAnchorView, LeafChain: result.LeafChain})
		h.consumer.OnDecide(result.LeafChain, result.DecideQC, result.BlockSize)
		h.cancelTasksBelow(result.NewAnchorView)
		if result.DecidedUpgradeCert != nil {
			h.store.SetDecidedUpgradeCert(result.DecidedUpgradeCert)
		}
	}

	view := proposal.View()
	leader, err := h.committee.Leader(view + 1)
	highQC := h.store.HighQC()
	if err == nil && h.committee.IsSelf(leader) && highQC != nil && highQC.View == view {
		h.invokeProducer(view + 1)
	}

	h.tryVote(proposal)
}

// onViewChange applies step 7 of update_view (§4.5), which this
// dispatcher owns since pendingCommitment lives here rather than in the
// Pacemaker, before driving the Pacemaker's own transition: drop a
// payload_commitment_and_metadata left over from the view being left.
// The comparison is against the view being exited, not the one being
// entered, matching old_view_number in the source this is grounded on.
func (h *EventHandler) onViewChange(event hotstuff.Event) {
	oldView := h.pace.CurView()
	h.mu.Lock()
	if h.pendingCommitment != nil && h.pendingCommitment.BlockView < oldView {
		h.pendingCommitment = nil
	}
	h.mu.Unlock()

	h.pace.UpdateView(event.View)
}

func (h *EventHandler) onVoteRecv(event hotstuff.Event) {
	vote := event.Vote
	if vote == nil {
		return
	}
	leader, err := h.committee.Leader(vote.View + 1)
	if err != nil || !h.committee.IsSelf(leader) {
		return
	}
	if err := h.votes.Submit(vote); err != nil {
		h.log.Debug().Err(err).Msg("vote not accumulated")
	}
}

func (h *EventHandler) onQCFormed(event hotstuff.Event) {
	qc := event.QC
	if qc == nil {
		return
	}
	switch qc.Kind {
	case model.QuorumQCKind:
		if err := h.persister.PutHighQC(qc); err != nil {
			h.log.Error().Err(err).Msg("could not persist high QC")
		}
		h.store.SetHighQC(qc)
		h.network.InjectConsensusInfo(hotstuff.CancelPollForVotes, qc.View)
		h.pace.UpdateView(qc.View + 1)
		h.invokeProducer(qc.View + 1)
	case model.TimeoutQCKind:
		h.mu.Lock()
		h.proposalCert = &model.ViewChangeEvidence{Kind: model.TimeoutEvidence, QC: qc}
		h.mu.Unlock()
		h.network.InjectConsensusInfo(hotstuff.CancelPollForVotes, qc.View)
		h.pace.UpdateView(qc.View + 1)
		h.invokeProducer(qc.View + 1)
	}
}

func (h *EventHandler) onUpgradeCertificateFormed(event hotstuff.Event) {
	uc := event.UpgradeCert
	if uc == nil {
		return
	}
	if uc.DecideBy >= h.pace.CurView()+3 {
		h.mu.Lock()
		h.formedUpgradeCert = uc
		h.mu.Unlock()
	}
}

func (h *EventHandler) onDACertificateRecv(event hotstuff.Event) {
	cert := event.QC
	if cert == nil {
		return
	}
	h.store.SetDACert(cert.View, cert)
	h.network.InjectConsensusInfo(hotstuff.CancelPollForDAC, cert.View)
	h.mu.Lock()
	proposal := h.currentProposal
	h.mu.Unlock()
	if proposal != nil {
		h.tryVote(proposal)
	}
}

// onVIDShareRecv validates and ingests a VID share per §4.6's acceptance
// rule: signer must be the view's leader, this node itself, or a DA
// committee member; the signed payload is the share's payload commitment.
func (h *EventHandler) onVIDShareRecv(event hotstuff.Event) {
	share := event.VIDShare
	if share == nil {
		return
	}
	curView := h.pace.CurView()
	if share.View+1 < curView {
		h.log.Debug().Uint64("view", share.View).Msg("rejecting VID share: more than one view older")
		return
	}

	if !h.verifyVIDShareSigner(share) {
		h.log.Warn().Uint64("view", share.View).Msg("rejecting VID share: signer is neither the leader, this node, nor a DA committee member")
		return
	}

	h.store.SetVIDShare(share)

	selfIdentity, err := h.committee.Identity(share.View, h.committee.Self())
	if err == nil && string(selfIdentity.PublicKey) == string(share.Recipient) {
		h.network.InjectConsensusInfo(hotstuff.CancelPollForVIDDisperse, share.View)
		h.mu.Lock()
		proposal := h.currentProposal
		h.mu.Unlock()
		if proposal != nil {
			h.tryVote(proposal)
		}
	}
}

// onSendCommitmentAndMetadata stores the builder's commitment-and-metadata
// and may invoke the Producer from either of two independent branches
// (§4.6, §9's open question: both may fire for the same view — dedup is
// left to the Producer's one-per-view guard rather than suppressed here,
// matching the source this is grounded on).
func (h *EventHandler) onSendCommitmentAndMetadata(event hotstuff.Event) {
	commitment := event.CommitmentAndMetadata
	if commitment == nil {
		return
	}
	h.mu.Lock()
	h.pendingCommitment = commitment
	proposalCert := h.proposalCert
	h.mu.Unlock()

	highQC := h.store.HighQC()
	if leader, err := h.committee.Leader(commitment.BlockView); err == nil && h.committee.IsSelf(leader) {
		if highQC != nil && highQC.View+1 == commitment.BlockView {
			h.invokeProducer(commitment.BlockView)
		}
	}

	if proposalCert == nil {
		return
	}
	// The leader check here is evaluated against the evidence's own QC
	// view, not commitment.BlockView: a timeout certificate authorizes
	// its signer's view+1, a view-sync finalize certificate authorizes
	// its own view directly.
	var evidenceLeaderView uint64
	switch proposalCert.Kind {
	case model.TimeoutEvidence:
		evidenceLeaderView = proposalCert.QC.View + 1
	case model.ViewSyncEvidence:
		evidenceLeaderView = proposalCert.QC.View
	default:
		return
	}
	if leader, err := h.committee.Leader(evidenceLeaderView); err == nil && h.committee.IsSelf(leader) {
		h.invokeProducer(commitment.BlockView)
	}
}

func (h *EventHandler) onViewSyncFinalize(event hotstuff.Event) {
	qc := event.QC
	if qc == nil {
		return
	}
	identities, err := h.committee.Identities(qc.View)
	if err != nil {
		return
	}
	if err := h.signer.VerifyQC(qc, identities); err != nil {
		h.log.Warn().Err(err).Msg("dropping view-sync finalize certificate: invalid")
		return
	}
	h.mu.Lock()
	h.proposalCert = &model.ViewChangeEvidence{Kind: model.ViewSyncEvidence, QC: qc}
	h.mu.Unlock()

	if qc.View > 0 {
		h.network.InjectConsensusInfo(hotstuff.CancelPollForVotes, qc.View-1)
	}
	h.pace.UpdateView(qc.View)

	leader, err := h.committee.Leader(qc.View)
	if err == nil && h.committee.IsSelf(leader) {
		h.invokeProducer(qc.View)
	}
}

// verifyVIDShareSigner implements §4.6's VID share acceptance rule:
// accept iff the signer is the quorum leader at the share's view, this
// node itself, or any member of the DA committee at that view — and the
// signature verifies against whichever identity matched.
func (h *EventHandler) verifyVIDShareSigner(share *model.VIDShare) bool {
	isLeader := false
	if leader, err := h.committee.Leader(share.View); err == nil && leader == share.Signer {
		isLeader = true
	}
	isSelf := h.committee.IsSelf(share.Signer)
	isDACommitteeMember := h.committee.HasStake(share.Signer)
	if !isLeader && !isSelf && !isDACommitteeMember {
		return false
	}

	identity, err := h.committee.Identity(share.View, share.Signer)
	if err != nil {
		return false
	}
	if err := h.signer.VerifyVIDShare(share, identity); err != nil {
		h.log.Warn().Err(err).Uint64("view", share.View).Msg("VID share signature invalid")
		return false
	}
	return true
}

func (h *EventHandler) tryVote(proposal *model.Proposal) {
	if err := h.voter.VoteIfAble(proposal); err != nil {
		h.log.Debug().Err(err).Msg("did not vote")
		return
	}
	h.mu.Lock()
	h.currentProposal = nil
	h.mu.Unlock()
}

func (h *EventHandler) invokeProducer(targetView uint64) {
	highQC := h.store.HighQC()
	parent, ok := h.store.GetLeaf(highQC.BlockID)
	if !ok {
		h.log.Debug().Uint64("view", targetView).Msg("cannot produce: parent leaf not in store")
		return
	}

	h.mu.Lock()
	commitment := h.pendingCommitment
	evidence := h.proposalCert
	in := blockproducer.Input{
		TargetView:         targetView,
		HighQC:             highQC,
		ViewChangeEvid:     evidence,
		Commitment:         commitment,
		FormedUpgradeCert:  h.formedUpgradeCert,
		DecidedUpgradeCert: h.store.DecidedUpgradeCert(),
		// Cleared only once the producer has confirmed it is actually
		// consuming these (§4.4 step 4), and only if nothing fresher has
		// replaced them in the meantime (e.g. during round_start_delay) —
		// clearing eagerly here would wipe state a retry still needs if
		// this attempt's own preconditions turn out not to hold yet.
		OnProduced: func(consumedCommitment, consumedEvidence bool) {
			h.mu.Lock()
			if consumedCommitment && h.pendingCommitment == commitment {
				h.pendingCommitment = nil
			}
			if consumedEvidence && h.proposalCert == evidence {
				h.proposalCert = nil
			}
			h.mu.Unlock()
		},
	}
	h.tasks.PushBack(viewTask{view: targetView, cancel: func() { h.producer.Cancel(targetView) }})
	h.mu.Unlock()

	h.producer.Publish(parent, in)
}

// cancelTasksBelow partitions the per-view task registry at anchor (§9)
// and cancels every sub-task registered below it — here, any in-flight
// producer invocation whose target view the decide has already passed.
// Cancellation is best-effort: a task that already produced its output
// is simply dropped from the registry without further effect.
func (h *EventHandler) cancelTasksBelow(anchor uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.tasks.Len() > 0 {
		front := h.tasks.Front().(viewTask)
		if front.view >= anchor {
			break
		}
		h.tasks.PopFront()
		front.cancel()
	}
	h.votes.PruneByView(anchor - 1)
}
