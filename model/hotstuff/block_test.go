package hotstuff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

func TestLeafIDDeterministic(t *testing.T) {
	leaf := &Leaf{
		View:       7,
		ParentID:   flow.Identifier{1},
		ProposerID: flow.Identifier{2},
		Header: BlockHeader{
			PayloadCommitment: flow.Identifier{3},
			BuilderCommitment: flow.Identifier{4},
			Metadata:          []byte("meta"),
		},
		QC: &QuorumCertificate{Kind: QuorumQCKind, View: 6, BlockID: flow.Identifier{5}},
	}

	id1 := leaf.ID()
	id2 := leaf.ID()
	assert.Equal(t, id1, id2)
}

func TestLeafIDExcludesPayload(t *testing.T) {
	base := &Leaf{View: 1, ParentID: flow.Identifier{9}}
	withPayload := &Leaf{View: 1, ParentID: flow.Identifier{9}, Payload: &Payload{Transactions: [][]byte{[]byte("tx")}}}

	assert.Equal(t, base.ID(), withPayload.ID(), "payload must never affect a leaf's commitment")
}

func TestLeafIDChangesWithUpgradeCert(t *testing.T) {
	base := &Leaf{View: 1, ParentID: flow.Identifier{9}}
	withCert := &Leaf{
		View:     1,
		ParentID: flow.Identifier{9},
		UpgradeCert: &UpgradeCertificate{
			NewVersion:          2,
			NewVersionFirstView: 10,
			DecideBy:            20,
		},
	}

	assert.NotEqual(t, base.ID(), withCert.ID())
}

func TestLeafIDSensitiveToEveryField(t *testing.T) {
	base := &Leaf{
		View:       1,
		ParentID:   flow.Identifier{1},
		ProposerID: flow.Identifier{2},
		Header:     BlockHeader{PayloadCommitment: flow.Identifier{3}},
	}

	variants := []*Leaf{
		{View: 2, ParentID: base.ParentID, ProposerID: base.ProposerID, Header: base.Header},
		{View: 1, ParentID: flow.Identifier{99}, ProposerID: base.ProposerID, Header: base.Header},
		{View: 1, ParentID: base.ParentID, ProposerID: flow.Identifier{99}, Header: base.Header},
		{View: 1, ParentID: base.ParentID, ProposerID: base.ProposerID, Header: BlockHeader{PayloadCommitment: flow.Identifier{99}}},
		{View: 1, ParentID: base.ParentID, ProposerID: base.ProposerID, Header: BlockHeader{PayloadCommitment: base.Header.PayloadCommitment, BuilderCommitment: flow.Identifier{99}}},
		{View: 1, ParentID: base.ParentID, ProposerID: base.ProposerID, Header: BlockHeader{PayloadCommitment: base.Header.PayloadCommitment, Metadata: []byte("x")}},
		{View: 1, ParentID: base.ParentID, ProposerID: base.ProposerID, Header: base.Header, QC: &QuorumCertificate{View: 0}},
	}

	baseID := base.ID()
	for i, v := range variants {
		require.NotEqual(t, baseID, v.ID(), "variant %d should commit to a different id", i)
	}
}

func TestPayloadTxCommitmentsDeduplicates(t *testing.T) {
	tx := []byte("same-transaction")
	p := &Payload{Transactions: [][]byte{tx, tx, []byte("other")}}
	commits := p.TxCommitments()
	assert.Len(t, commits, 2)
}
