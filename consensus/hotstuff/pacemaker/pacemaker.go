// Package pacemaker implements the View-Change Controller (C5, §4.5):
// update_view and the per-view timeout that drives liveness when a
// proposal does not arrive in time. Grounded on the teacher's
// engine/consensus/hotstuff/pacemaker.go stub (CurView/UpdateValidQC/
// OnLocalTimeout naming) and cmd/consensus/main.go's reference to a
// pacemaker/timeout.DefaultConfig, reconstructed here as a concrete
// Config since the teacher's own timeout subpackage is not present in
// the retrieval pack.
package pacemaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/notifications"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Config mirrors the fixed-at-construction timing knobs from §6's
// Configuration block.
type Config struct {
	Timeout         time.Duration
	RoundStartDelay time.Duration
}

// DefaultConfig returns conservative defaults for a production deployment.
func DefaultConfig() Config {
	return Config{
		Timeout:         4 * time.Second,
		RoundStartDelay: 0,
	}
}

// Pacemaker owns cur_view, the process-wide version cell, and the
// single outstanding per-view timeout task.
type Pacemaker struct {
	mu      sync.Mutex
	curView uint64
	timer   *time.Timer

	cfg       Config
	network   hotstuff.Network
	committee hotstuff.Committee
	signer    hotstuff.SignerVerifier
	store     hotstuff.StoreReader
	bus       *hotstuff.EventBus
	consumer  notifications.Consumer
	metrics   hotstuff.Metrics
	version   *atomic.Uint64
	log       zerolog.Logger
}

// New creates a Pacemaker starting at view 0 (no timer armed until the
// first UpdateView call). version is the process-wide protocol version
// cell, swapped atomically on an in-band upgrade taking effect.
func New(cfg Config, network hotstuff.Network, committee hotstuff.Committee, signer hotstuff.SignerVerifier, store hotstuff.StoreReader, bus *hotstuff.EventBus, consumer notifications.Consumer, metrics hotstuff.Metrics, version *atomic.Uint64, log zerolog.Logger) *Pacemaker {
	return &Pacemaker{
		cfg:       cfg,
		network:   network,
		committee: committee,
		signer:    signer,
		store:     store,
		bus:       bus,
		consumer:  consumer,
		metrics:   metrics,
		version:   version,
		log:       log.With().Str("component", "pacemaker").Logger(),
	}
}

// CurView returns the controller's current view.
func (p *Pacemaker) CurView() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curView
}

// UpdateView advances cur_view to newView, following §4.5 steps 1-6; step 7
// (dropping a stale pending commitment-and-metadata) is done by the
// dispatcher's onViewChange, which owns that state.
// Idempotent (a no-op) when newView <= cur_view.
func (p *Pacemaker) UpdateView(newView uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if newView <= p.curView {
		return
	}
	oldView := p.curView

	if p.timer != nil {
		p.timer.Stop()
	}

	p.curView = newView

	p.network.InjectConsensusInfo(hotstuff.PollForProposal, newView)
	p.network.InjectConsensusInfo(hotstuff.PollForVotes, newView)
	p.network.InjectConsensusInfo(hotstuff.PollForVIDDisperse, newView)
	p.network.InjectConsensusInfo(hotstuff.PollForDAC, newView)

	p.timer = time.AfterFunc(p.cfg.Timeout, func() {
		p.bus.Publish(hotstuff.Event{Type: hotstuff.Timeout, View: newView})
	})

	if p.metrics != nil {
		p.metrics.ViewEntered(newView)
	}
	p.bus.Publish(hotstuff.Event{Type: hotstuff.ViewChange, View: newView})
	p.consumer.OnViewFinished(oldView)

	if decided := p.store.DecidedUpgradeCert(); decided != nil && decided.NewVersionFirstView == newView {
		p.version.Store(decided.NewVersion)
		p.bus.Publish(hotstuff.Event{Type: hotstuff.VersionUpgrade, View: newView, NewVersion: decided.NewVersion})
	}
}

// Timeout handles a fired Timeout(V) event: if cur_view has already
// advanced past V, it is stale and ignored; otherwise this node signs
// and broadcasts a timeout vote for V (§4.5).
func (p *Pacemaker) Timeout(view uint64) {
	p.mu.Lock()
	if p.curView > view {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.network.InjectConsensusInfo(hotstuff.CancelPollForVotes, view)
	p.network.InjectConsensusInfo(hotstuff.CancelPollForProposal, view)

	vote, err := p.signer.CreateVote(&model.Leaf{View: view}, model.TimeoutVoteKind)
	if err != nil {
		p.log.Error().Err(err).Uint64("view", view).Msg("could not sign timeout vote")
		return
	}

	p.bus.Publish(hotstuff.Event{Type: hotstuff.TimeoutVoteSend, View: view, Vote: vote})
	p.consumer.OnViewTimeout(view)
	p.consumer.OnReplicaViewTimeout(view)
	if p.metrics != nil {
		p.metrics.TimeoutOccurred()
	}
}
