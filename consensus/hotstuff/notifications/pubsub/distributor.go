// Package pubsub implements a thread-safe fan-out of application-stream
// notifications to any number of subscribers, grounded on the teacher's
// engine/consensus/hotstuff/examples/notifications.PubSubDistributor.
package pubsub

import (
	"sync"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/notifications"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Distributor is an implementation of notifications.Consumer that
// distributes each event to every subscribed consumer, allowing
// independent observers (telemetry, metrics, test harnesses) to be
// composed without the core knowing about any of them individually.
type Distributor struct {
	mu                  sync.RWMutex
	decideConsumers     []notifications.DecideConsumer
	viewFinishedConsumers []notifications.ViewFinishedConsumer
	viewTimeoutConsumers  []notifications.ViewTimeoutConsumer
	replicaTimeoutConsumers []notifications.ReplicaViewTimeoutConsumer
}

// NewDistributor returns an empty Distributor ready to accept subscribers.
func NewDistributor() *Distributor {
	return &Distributor{}
}

// AddConsumer subscribes cons to every notification kind it implements.
// Returns the Distributor for chaining, mirroring the teacher's
// AddXConsumer builder methods.
func (d *Distributor) AddConsumer(cons notifications.Consumer) *Distributor {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decideConsumers = append(d.decideConsumers, cons)
	d.viewFinishedConsumers = append(d.viewFinishedConsumers, cons)
	d.viewTimeoutConsumers = append(d.viewTimeoutConsumers, cons)
	d.replicaTimeoutConsumers = append(d.replicaTimeoutConsumers, cons)
	return d
}

func (d *Distributor) OnDecide(leafChain []*hotstuff.LeafInfo, qc *model.QuorumCertificate, blockSize int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.decideConsumers {
		c.OnDecide(leafChain, qc, blockSize)
	}
}

func (d *Distributor) OnViewFinished(view uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.viewFinishedConsumers {
		c.OnViewFinished(view)
	}
}

func (d *Distributor) OnViewTimeout(view uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.viewTimeoutConsumers {
		c.OnViewTimeout(view)
	}
}

func (d *Distributor) OnReplicaViewTimeout(view uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.replicaTimeoutConsumers {
		c.OnReplicaViewTimeout(view)
	}
}
