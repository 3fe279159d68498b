package hotstuff

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

func TestVoteKindCertificateKind(t *testing.T) {
	cases := map[VoteKind]CertificateKind{
		QuorumVoteKind:  QuorumQCKind,
		TimeoutVoteKind: TimeoutQCKind,
		ViewSyncVoteKind: ViewSyncFinalizeQCKind,
		UpgradeVoteKind: UpgradeQCKind,
	}
	for vk, ck := range cases {
		assert.Equal(t, ck, vk.CertificateKind())
	}
}

func TestVoteIDStableAndDistinct(t *testing.T) {
	v1 := &Vote{Kind: QuorumVoteKind, View: 3, BlockID: flow.Identifier{1}, SignerID: flow.Identifier{2}}
	v2 := &Vote{Kind: QuorumVoteKind, View: 3, BlockID: flow.Identifier{1}, SignerID: flow.Identifier{2}}
	assert.Equal(t, v1.ID(), v2.ID())

	v3 := &Vote{Kind: TimeoutVoteKind, View: 3, BlockID: flow.Identifier{1}, SignerID: flow.Identifier{2}}
	assert.NotEqual(t, v1.ID(), v3.ID(), "kind must factor into the vote id, distinguishing slots sharing view+signer")
}
