package hotstuff

import (
	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

// VIDShare is a verifiable-information-dispersal fragment of a payload
// addressed to a single recipient (§3). Signer identifies whoever
// produced and signed the share (the view's leader, the DA committee
// member that re-derived it, or the node itself), distinct from
// Recipient, which it is addressed to; §4.6's acceptance rule is checked
// against Signer.
type VIDShare struct {
	View              uint64
	Signer            flow.Identifier
	Recipient         flow.PublicKey
	PayloadCommitment flow.Identifier
	Signature         []byte
	Fragment          []byte
}

// CommitmentAndMetadata mirrors `M` from §3: the builder's commitment and
// metadata for a prospective block at BlockView.
type CommitmentAndMetadata struct {
	PayloadCommitment flow.Identifier
	BuilderCommitment flow.Identifier
	Metadata          []byte
	Fee               uint64
	BlockView         uint64
}

// NullBlockCommitment returns the canonical commitment for the empty
// ("null") block used during an in-band upgrade's interim window, a
// function of the quorum size only (§4.4a, item 3) so every honest replica
// derives the same value independently.
func NullBlockCommitment(quorumSize int) flow.Identifier {
	enc := newCanonicalEncoder()
	enc.writeBytes([]byte("null-block"))
	enc.writeUint64(uint64(quorumSize))
	return enc.sum()
}
