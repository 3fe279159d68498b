// Package hotstuff declares the shared vocabulary the chained-BFT replica
// is built from: membership, signing, persistence and store-reading
// interfaces that every sub-component (store, forks, voteaggregator,
// voter, blockproducer, pacemaker, eventhandler) depends on without
// depending on each other's concrete packages. This mirrors the teacher's
// top-level consensus/hotstuff package, which held exactly this kind of
// cross-cutting interface (see sig_aggregator.go) while concrete
// implementations lived in subpackages (voter/, blockproducer/,
// verification/).
package hotstuff

import (
	"time"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
	"github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Metrics is the consensus-facing subset of the Consensus State Store's
// counters/gauges (§3): views, timeouts, invalid QCs and decide
// timestamps. Concrete collectors live in module/metrics, grounded on the
// teacher's prometheus-backed module/metrics/verification.go.
type Metrics interface {
	ViewEntered(view uint64)
	TimeoutOccurred()
	InvalidQCObserved()
	Decided(view uint64, decidedAt time.Time, viewsPerDecide uint64)
}

// Committee answers membership questions for the quorum (consensus
// committee) or the DA committee at a given view (§6 Membership adapter).
type Committee interface {
	// Self returns this node's own identifier.
	Self() flow.Identifier
	// IsSelf reports whether id is this node's own identifier.
	IsSelf(id flow.Identifier) bool
	// Leader returns the leader for the given view.
	Leader(view uint64) (flow.Identifier, error)
	// HasStake reports whether id is a member of the committee at all.
	HasStake(id flow.Identifier) bool
	// Identities returns the full committee as seen at the given view.
	Identities(view uint64) (flow.IdentityList, error)
	// Identity returns a single committee member's identity at the given view.
	Identity(view uint64, id flow.Identifier) (*flow.Identity, error)
	// TotalNodes returns the size of the committee.
	TotalNodes() int
	// Threshold returns the minimum number of signers (f+1-style quorum
	// threshold) required for a certificate at the given view.
	Threshold(view uint64) int
}

// SignerVerifier produces and checks signatures over votes, proposals and
// certificates, grounded on the teacher's verification.SingleSigner /
// SingleVerifier split (consensus/hotstuff/verification/single_signer.go).
type SignerVerifier interface {
	// CreateVote signs a vote of the given kind for leaf on behalf of this node.
	CreateVote(leaf *hotstuff.Leaf, kind hotstuff.VoteKind) (*hotstuff.Vote, error)
	// CreateProposal signs a proposal for leaf, embedding evidence when non-nil.
	CreateProposal(leaf *hotstuff.Leaf, evidence *hotstuff.ViewChangeEvidence) (*hotstuff.Proposal, error)
	// CreateQC aggregates votes (all for the same kind/view/blockID) into a certificate.
	CreateQC(votes []*hotstuff.Vote) (*hotstuff.QuorumCertificate, error)
	// VerifyVote checks a vote's signature against the signer's public key.
	VerifyVote(vote *hotstuff.Vote, signer *flow.Identity) error
	// VerifyQC checks an aggregate certificate's signature against the committee.
	VerifyQC(qc *hotstuff.QuorumCertificate, identities flow.IdentityList) error
	// VerifyProposal checks a proposal's signature against its proposer.
	VerifyProposal(proposal *hotstuff.Proposal, proposer *flow.Identity) error
	// VerifyVIDShare checks a VID share's signature against its signer.
	VerifyVIDShare(share *hotstuff.VIDShare, signer *flow.Identity) error
}

// Persister durably records the two pieces of state a replica must never
// forget across a restart: the highest QC observed and the last view it
// voted in (so it never double-votes), grounded on the teacher's
// storage/badger/{views,commits}.go pattern.
type Persister interface {
	PutHighQC(qc *hotstuff.QuorumCertificate) error
	GetHighQC() (*hotstuff.QuorumCertificate, error)
	PutVoted(view uint64) error
	GetVoted() (uint64, error)
}

// StoreReader is the read-only surface of the Consensus State Store (C1)
// that downstream components (Forks, Voter, BlockProducer) consume without
// needing to know about its locking discipline.
type StoreReader interface {
	HighQC() *hotstuff.QuorumCertificate
	LockedView() uint64
	LastDecidedView() uint64
	GetLeaf(id flow.Identifier) (*hotstuff.Leaf, bool)
	SavedPayload(view uint64) (*hotstuff.Payload, bool)
	VIDShareFor(view uint64, recipient flow.PublicKey) (*hotstuff.VIDShare, bool)
	DACert(view uint64) (*hotstuff.QuorumCertificate, bool)
	DecidedUpgradeCert() *hotstuff.UpgradeCertificate
}

// PollIntent enumerates the network polling requests the core issues to
// the (out of scope) networking layer, per §6.
type PollIntent uint8

const (
	PollForProposal PollIntent = iota + 1
	PollForVotes
	PollForVIDDisperse
	PollForDAC
	CancelPollForProposal
	CancelPollForVotes
	CancelPollForVIDDisperse
	CancelPollForDAC
)

// Network is the consumed transport adapter: it accepts polling intents
// and is otherwise opaque to the consensus core (§6).
type Network interface {
	InjectConsensusInfo(intent PollIntent, view uint64)
}

// StorageAdapter is the consumed persistent-storage surface for VID
// shares and the high QC (§6). Both operations return a persistence error
// on failure, which the core treats as non-fatal.
type StorageAdapter interface {
	AppendVID(share *hotstuff.VIDShare) error
	UpdateHighQC(qc *hotstuff.QuorumCertificate) error
}
