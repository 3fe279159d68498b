package hotstuff

import (
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	"github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// EventType tags the variant carried by an Event. Go has no native sum
// type, so (as the teacher's own model/hotstuff vote/QC structs do for
// their narrower unions) a discriminated struct stands in for one.
type EventType uint8

const (
	// Inputs, per §6.
	QuorumProposalRecv EventType = iota + 1
	QuorumProposalValidated
	QuorumVoteRecv
	TimeoutVoteRecv
	QCFormed
	UpgradeCertificateFormed
	DACertificateRecv
	VIDShareRecv
	ViewChange
	Timeout
	SendPayloadCommitmentAndMetadata
	ViewSyncFinalizeCertificate2Recv
	Shutdown

	// Outputs, per §6.
	QuorumProposalSend
	QuorumVoteSend
	TimeoutVoteSend
	LeafDecided
	VersionUpgrade
)

func (t EventType) String() string {
	switch t {
	case QuorumProposalRecv:
		return "QuorumProposalRecv"
	case QuorumProposalValidated:
		return "QuorumProposalValidated"
	case QuorumVoteRecv:
		return "QuorumVoteRecv"
	case TimeoutVoteRecv:
		return "TimeoutVoteRecv"
	case QCFormed:
		return "QCFormed"
	case UpgradeCertificateFormed:
		return "UpgradeCertificateFormed"
	case DACertificateRecv:
		return "DACertificateRecv"
	case VIDShareRecv:
		return "VIDShareRecv"
	case ViewChange:
		return "ViewChange"
	case Timeout:
		return "Timeout"
	case SendPayloadCommitmentAndMetadata:
		return "SendPayloadCommitmentAndMetadata"
	case ViewSyncFinalizeCertificate2Recv:
		return "ViewSyncFinalizeCertificate2Recv"
	case Shutdown:
		return "Shutdown"
	case QuorumProposalSend:
		return "QuorumProposalSend"
	case QuorumVoteSend:
		return "QuorumVoteSend"
	case TimeoutVoteSend:
		return "TimeoutVoteSend"
	case LeafDecided:
		return "LeafDecided"
	case VersionUpgrade:
		return "VersionUpgrade"
	default:
		return "Unknown"
	}
}

// Event is the single wire format carried over the internal broadcast
// channel (§6). Only the fields relevant to Type are populated; the rest
// are left zero. Kept as one flat struct rather than an interface{} union
// so the dispatcher's routing switch (eventhandler) stays exhaustive and
// allocation-free.
type Event struct {
	Type EventType
	View uint64

	Proposal       *hotstuff.Proposal
	ProposalSender flow.Identifier

	Vote *hotstuff.Vote

	// QC carries the certificate for QCFormed (Kind distinguishes the
	// QuorumQC / TimeoutQC cases the spec describes as Left/Right),
	// UpgradeCertificateFormed's embedded QC, DACertificateRecv, and
	// ViewSyncFinalizeCertificate2Recv.
	QC *hotstuff.QuorumCertificate

	UpgradeCert *hotstuff.UpgradeCertificate
	VIDShare    *hotstuff.VIDShare

	CommitmentAndMetadata *hotstuff.CommitmentAndMetadata

	// LeafChain carries LeafDecided's payload.
	LeafChain []*LeafInfo

	NewVersion uint64
}

// LeafInfo materializes one decided leaf along with its application-level
// state/delta handles and any hydrated payload, per §4.3 Phase 1.
type LeafInfo struct {
	Leaf     *hotstuff.Leaf
	State    []byte
	Delta    []byte
	VIDShare *hotstuff.VIDShare
	Payload  *hotstuff.Payload
}
