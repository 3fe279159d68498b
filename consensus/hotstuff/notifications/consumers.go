// Package notifications declares the application event stream consumer
// interfaces (§6), grounded on the teacher's
// engine/consensus/hotstuff/examples/notifications/consumers.go, which
// defined one narrow interface per notification kind so that a consumer
// caring about only one kind of event (e.g. a metrics collector) need not
// implement the others.
package notifications

import (
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// DecideConsumer consumes notifications of type `Decide`, produced by the
// Proposal Validator / Chain Extender (C3) whenever a three-chain commit
// is reached.
// Prerequisites:
// Implementation must be concurrency safe; non-blocking; and must handle
// repetition of the same events (with some processing overhead).
type DecideConsumer interface {
	OnDecide(leafChain []*hotstuff.LeafInfo, qc *model.QuorumCertificate, blockSize int)
}

// ViewFinishedConsumer consumes notifications of type `ViewFinished`,
// produced by the View-Change Controller (C5) every time it advances
// cur_view.
// Prerequisites:
// Implementation must be concurrency safe; non-blocking; and must handle
// repetition of the same events (with some processing overhead).
type ViewFinishedConsumer interface {
	OnViewFinished(view uint64)
}

// ViewTimeoutConsumer consumes notifications of type `ViewTimeout`,
// produced when this replica's local timer for a view fires.
// Prerequisites:
// Implementation must be concurrency safe; non-blocking; and must handle
// repetition of the same events (with some processing overhead).
type ViewTimeoutConsumer interface {
	OnViewTimeout(view uint64)
}

// ReplicaViewTimeoutConsumer consumes notifications of type
// `ReplicaViewTimeout`, emitted alongside ViewTimeout specifically to
// distinguish "this replica timed out" from a generic view-timeout signal
// that other subsystems might also emit.
// Prerequisites:
// Implementation must be concurrency safe; non-blocking; and must handle
// repetition of the same events (with some processing overhead).
type ReplicaViewTimeoutConsumer interface {
	OnReplicaViewTimeout(view uint64)
}

// Consumer bundles every application-stream notification kind the core
// emits. pubsub.Distributor accepts only full Consumer values through
// AddConsumer and delivers all four kinds to each; it has no way to add
// an implementation of one of the narrower interfaces above on its own.
type Consumer interface {
	DecideConsumer
	ViewFinishedConsumer
	ViewTimeoutConsumer
	ReplicaViewTimeoutConsumer
}
