package hotstuff

import (
	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

// BlockHeader is the opaque, application-defined portion of a leaf. Its
// contents (actual transactions, builder identity, ...) are produced by a
// block-payload builder that is out of scope for this module; the
// consensus core only ever reasons about its commitment.
type BlockHeader struct {
	PayloadCommitment flow.Identifier
	BuilderCommitment flow.Identifier
	Metadata          []byte
}

// Payload is the hydrated, decoded block body. It is never part of a
// leaf's commitment (see Leaf.ID) — it is attached after VID
// reconstruction or DA delivery purely for application consumption.
type Payload struct {
	Transactions [][]byte
}

// TxCommitments returns the set of unique transaction commitments found in
// the payload, used to compute EventType::Decide's block_size.
func (p *Payload) TxCommitments() map[flow.Identifier]struct{} {
	commits := make(map[flow.Identifier]struct{}, len(p.Transactions))
	for _, tx := range p.Transactions {
		commits[sha256Sum(tx)] = struct{}{}
	}
	return commits
}

// Leaf is a single block in the chained-BFT DAG: it extends a parent by
// commitment and carries the QC that justifies it.
type Leaf struct {
	View        uint64
	ParentID    flow.Identifier
	ProposerID  flow.Identifier
	Header      BlockHeader
	QC          *QuorumCertificate // justify-QC for this leaf
	UpgradeCert *UpgradeCertificate
	Payload     *Payload // hydrated lazily, excluded from the commitment
}

// ID returns commit(L): a collision-resistant digest over the leaf's
// structural fields. Payload is never included (hydration happens after
// the leaf's identity is fixed); UpgradeCert is included only when
// present, so two otherwise-identical leaves with and without an embedded
// upgrade certificate commit to different values.
func (l *Leaf) ID() flow.Identifier {
	enc := newCanonicalEncoder()
	enc.writeUint64(l.View)
	enc.writeBytes(l.ParentID[:])
	enc.writeBytes(l.ProposerID[:])
	enc.writeBytes(l.Header.PayloadCommitment[:])
	enc.writeBytes(l.Header.BuilderCommitment[:])
	enc.writeBytes(l.Header.Metadata)
	if l.QC != nil {
		enc.writeUint64(l.QC.View)
		enc.writeBytes(l.QC.BlockID[:])
	}
	if l.UpgradeCert != nil {
		enc.writeUint64(l.UpgradeCert.NewVersion)
		enc.writeUint64(l.UpgradeCert.NewVersionFirstView)
		enc.writeUint64(l.UpgradeCert.DecideBy)
	}
	return enc.sum()
}
