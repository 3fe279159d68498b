package hotstuff

import (
	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

// VoteKind distinguishes the certificate a vote contributes to. The vote
// accumulator handles every kind alike; a certificate formed from
// UpgradeVoteKind votes is published as UpgradeCertificateFormed and every
// other kind as QCFormed.
type VoteKind uint8

const (
	QuorumVoteKind VoteKind = iota + 1
	TimeoutVoteKind
	ViewSyncVoteKind
	UpgradeVoteKind
)

func (k VoteKind) CertificateKind() CertificateKind {
	switch k {
	case QuorumVoteKind:
		return QuorumQCKind
	case TimeoutVoteKind:
		return TimeoutQCKind
	case ViewSyncVoteKind:
		return ViewSyncFinalizeQCKind
	case UpgradeVoteKind:
		return UpgradeQCKind
	default:
		return 0
	}
}

// Vote is a single signed attestation to BlockID at View, of the given
// Kind, from SignerID.
type Vote struct {
	Kind     VoteKind
	View     uint64
	BlockID  flow.Identifier
	SignerID flow.Identifier
	SigData  []byte
}

// ID returns a stable identifier for this vote used for de-duplication,
// mirroring the teacher's *Vote.ID() used as a map key in PendingStatus.
func (v *Vote) ID() flow.Identifier {
	enc := newCanonicalEncoder()
	enc.writeUint64(uint64(v.Kind))
	enc.writeUint64(v.View)
	enc.writeBytes(v.BlockID[:])
	enc.writeBytes(v.SignerID[:])
	return enc.sum()
}
