// Package consensus assembles the six core components (C1-C6) into a
// single running replica, grounded on the teacher's cmd/consensus/main.go
// construction sequence (`consensus.NewParticipant(...)` built from a
// chain of functional options such as `consensus.WithInitialTimeout`) and
// on the `HotStuff` interface in module/hotstuff.go that the assembled
// participant exposes (Start/SubmitProposal/SubmitVote).
package consensus

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/blockproducer"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/committee"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/eventhandler"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/forks"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/notifications"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/notifications/pubsub"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/pacemaker"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/persister"
	storepkg "github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/store"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/voteaggregator"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/voter"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
	storagebadger "github.com/dapperlabs/hotshot-consensus/storage/badger"
)

// Config is the fixed-at-construction configuration block from §6.
type Config struct {
	NodeID          flow.Identifier
	Timeout         time.Duration
	RoundStartDelay time.Duration
}

// Option customizes a Participant at construction, mirroring the
// teacher's WithInitialTimeout-style functional options.
type Option func(*options)

type options struct {
	cfg     Config
	metrics hotstuff.Metrics
}

// WithTimeout overrides the per-view timeout duration.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.Timeout = d }
}

// WithRoundStartDelay overrides the producer's liveness-slack delay.
func WithRoundStartDelay(d time.Duration) Option {
	return func(o *options) { o.cfg.RoundStartDelay = d }
}

// WithMetrics installs a metrics sink; without this option, metrics
// calls are no-ops.
func WithMetrics(m hotstuff.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Participant is a fully wired consensus replica implementing the
// teacher's HotStuff contract (Start/SubmitProposal/SubmitVote).
type Participant struct {
	bus          *hotstuff.EventBus
	store        *storepkg.Store
	eventhandler *eventhandler.EventHandler
	pace         *pacemaker.Pacemaker
}

// NewParticipant wires a Participant for self against committee,
// network, db-backed persistence and signer, applying opts over
// sensible defaults.
func NewParticipant(
	self flow.Identifier,
	identities flow.IdentityList,
	genesis *model.Leaf,
	genesisQC *model.QuorumCertificate,
	signer hotstuff.SignerVerifier,
	network hotstuff.Network,
	db *badger.DB,
	log zerolog.Logger,
	opts ...Option,
) (*Participant, error) {
	o := &options{cfg: Config{
		NodeID:          self,
		Timeout:         4 * time.Second,
		RoundStartDelay: 0,
	}}
	for _, opt := range opts {
		opt(o)
	}

	comm, err := committee.New(self, identities)
	if err != nil {
		return nil, fmt.Errorf("could not construct committee: %w", err)
	}

	metricsCollector := o.metrics
	bus := hotstuff.NewEventBus(256)
	store := storepkg.New(genesis, genesisQC, metricsCollector, log)

	persist := persister.New(db)
	storageAdapter := storagebadger.New(db)

	distributor := pubsub.NewDistributor()
	var consumer notifications.Consumer = distributor

	votes := voteaggregator.NewRegistry(comm, signer, bus, log)

	selfIdentity, err := comm.Identity(0, self)
	if err != nil {
		return nil, fmt.Errorf("could not resolve self identity: %w", err)
	}
	validator := forks.New(store, selfIdentity.PublicKey, metricsCollector, log)

	vtr := voter.New(store, comm, signer, storageAdapter, persist, bus, log)
	producer := blockproducer.New(comm, signer, bus, o.cfg.RoundStartDelay, log)

	version := atomic.NewUint64(1)
	pace := pacemaker.New(pacemaker.Config{Timeout: o.cfg.Timeout, RoundStartDelay: o.cfg.RoundStartDelay}, network, comm, signer, store, bus, consumer, metricsCollector, version, log)

	handler := eventhandler.New(store, validator, votes, vtr, producer, pace, comm, signer, persist, network, bus, consumer, metricsCollector, version, log)

	return &Participant{
		bus:          bus,
		store:        store,
		eventhandler: handler,
		pace:         pace,
	}, nil
}

// Start begins processing events; returns an exit function and a done
// channel that closes once the dispatcher has fully stopped.
func (p *Participant) Start() (exit func(), done <-chan struct{}) {
	p.pace.UpdateView(1)
	return p.eventhandler.Start()
}

// SubmitProposal injects a received proposal into the event bus.
func (p *Participant) SubmitProposal(proposal *model.Proposal, sender flow.Identifier) {
	p.bus.Publish(hotstuff.Event{Type: hotstuff.QuorumProposalRecv, View: proposal.View(), Proposal: proposal, ProposalSender: sender})
}

// SubmitVote injects a received vote into the event bus, routed by its
// Kind to the quorum or timeout accumulator slot.
func (p *Participant) SubmitVote(vote *model.Vote) {
	evtType := hotstuff.QuorumVoteRecv
	if vote.Kind == model.TimeoutVoteKind {
		evtType = hotstuff.TimeoutVoteRecv
	}
	p.bus.Publish(hotstuff.Event{Type: evtType, View: vote.View, Vote: vote})
}

