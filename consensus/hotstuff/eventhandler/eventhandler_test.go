package eventhandler

import (
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/bls"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/blockproducer"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/committee"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/forks"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/pacemaker"
	storepkg "github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/store"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/verification"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/voteaggregator"
	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/voter"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

type stubMetrics struct{}

func (stubMetrics) ViewEntered(uint64)                             {}
func (stubMetrics) TimeoutOccurred()                                {}
func (stubMetrics) InvalidQCObserved()                              {}
func (stubMetrics) Decided(uint64, time.Time, uint64)                {}

type stubConsumer struct{}

func (stubConsumer) OnDecide([]*hotstuff.LeafInfo, *model.QuorumCertificate, int) {}
func (stubConsumer) OnViewFinished(uint64)                                       {}
func (stubConsumer) OnViewTimeout(uint64)                                        {}
func (stubConsumer) OnReplicaViewTimeout(uint64)                                 {}

type mockNetwork struct{ mock.Mock }

func (m *mockNetwork) InjectConsensusInfo(intent hotstuff.PollIntent, view uint64) {
	m.Called(intent, view)
}

type mockPersister struct{ mock.Mock }

func (m *mockPersister) PutHighQC(qc *model.QuorumCertificate) error {
	args := m.Called(qc)
	return args.Error(0)
}
func (m *mockPersister) GetHighQC() (*model.QuorumCertificate, error) {
	args := m.Called()
	qc, _ := args.Get(0).(*model.QuorumCertificate)
	return qc, args.Error(1)
}
func (m *mockPersister) PutVoted(view uint64) error { args := m.Called(view); return args.Error(0) }
func (m *mockPersister) GetVoted() (uint64, error) {
	args := m.Called()
	return args.Get(0).(uint64), args.Error(1)
}

type mockStorage struct{ mock.Mock }

func (m *mockStorage) AppendVID(share *model.VIDShare) error {
	args := m.Called(share)
	return args.Error(0)
}
func (m *mockStorage) UpdateHighQC(qc *model.QuorumCertificate) error {
	args := m.Called(qc)
	return args.Error(0)
}

// fixture wires a real committee, store, forks validator, vote registry,
// voter, producer and pacemaker around an EventHandler, so the dispatcher
// methods under test run against the same collaborators production code
// uses rather than loose doubles.
type fixture struct {
	handler  *EventHandler
	comm     *committee.Static
	signer   *verification.Signer
	store    *storepkg.Store
	network  *mockNetwork
	persist  *mockPersister
	bus      *hotstuff.EventBus
	version  *atomic.Uint64
}

// newFixture builds an n-member committee with self as the first member
// (identities[0]), so self is the round-robin leader at every view
// congruent to 0 mod n.
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	identities := make(flow.IdentityList, n)
	var self flow.Identifier
	var signer *verification.Signer
	for i := 0; i < n; i++ {
		seed := fmt.Sprintf("node-%d", i)
		id := sha256.Sum256([]byte(seed))
		pub, priv, err := bls.KeyGen[bls.KeyMinSig]([]byte(seed), nil, nil)
		require.NoError(t, err)
		pubBytes, err := pub.MarshalBinary()
		require.NoError(t, err)
		identities[i] = &flow.Identity{NodeID: id, Stake: 1, PublicKey: pubBytes}
		if i == 0 {
			self = id
			signer = verification.NewSigner(id, priv)
		}
	}
	comm, err := committee.New(self, identities)
	require.NoError(t, err)

	genesis := &model.Leaf{View: 0}
	genesisQC := &model.QuorumCertificate{Kind: model.QuorumQCKind, View: 0, BlockID: genesis.ID()}
	store := storepkg.New(genesis, genesisQC, stubMetrics{}, zerolog.Nop())

	bus := hotstuff.NewEventBus(16)
	validator := forks.New(store, flow.PublicKey(identities[0].PublicKey), stubMetrics{}, zerolog.Nop())
	votes := voteaggregator.NewRegistry(comm, signer, bus, zerolog.Nop())
	storage := &mockStorage{}
	storage.On("AppendVID", mock.Anything).Return(nil)
	persist := &mockPersister{}
	persist.On("GetVoted").Return(uint64(0), nil)
	persist.On("PutVoted", mock.Anything).Return(nil)
	persist.On("PutHighQC", mock.Anything).Return(nil)
	vtr := voter.New(store, comm, signer, storage, persist, bus, zerolog.Nop())
	producer := blockproducer.New(comm, signer, bus, 0, zerolog.Nop())
	network := &mockNetwork{}
	network.On("InjectConsensusInfo", mock.Anything, mock.Anything).Return()
	version := atomic.NewUint64(1)
	pace := pacemaker.New(pacemaker.Config{Timeout: time.Hour}, network, comm, signer, store, bus, stubConsumer{}, stubMetrics{}, version, zerolog.Nop())

	h := New(store, validator, votes, vtr, producer, pace, comm, signer, persist, network, bus, stubConsumer{}, stubMetrics{}, version, zerolog.Nop())

	return &fixture{
		handler: h,
		comm:    comm,
		signer:  signer,
		store:   store,
		network: network,
		persist: persist,
		bus:     bus,
		version: version,
	}
}

func TestOnViewChangeDropsPendingCommitmentOlderThanExitedView(t *testing.T) {
	f := newFixture(t, 1)
	f.handler.pace.UpdateView(5)

	f.handler.mu.Lock()
	f.handler.pendingCommitment = &model.CommitmentAndMetadata{BlockView: 3}
	f.handler.mu.Unlock()

	f.handler.onViewChange(hotstuff.Event{View: 6})

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.Nil(t, f.handler.pendingCommitment, "a commitment older than the exited view must be dropped")
}

func TestOnViewChangeKeepsPendingCommitmentAtOrAfterExitedView(t *testing.T) {
	f := newFixture(t, 1)
	f.handler.pace.UpdateView(5)

	f.handler.mu.Lock()
	f.handler.pendingCommitment = &model.CommitmentAndMetadata{BlockView: 5}
	f.handler.mu.Unlock()

	f.handler.onViewChange(hotstuff.Event{View: 6})

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.NotNil(t, f.handler.pendingCommitment, "a commitment at or after the exited view must survive")
}

func TestOnQCFormedTimeoutKindCancelsVotePoll(t *testing.T) {
	f := newFixture(t, 1)
	genesis := &model.Leaf{View: 0}
	parent := &model.Leaf{View: 6, ParentID: genesis.ID()}
	f.store.AddLeaf(parent)
	f.store.SetHighQC(&model.QuorumCertificate{Kind: model.QuorumQCKind, View: 6, BlockID: parent.ID()})

	qc := &model.QuorumCertificate{Kind: model.TimeoutQCKind, View: 7}
	f.handler.onQCFormed(hotstuff.Event{Type: hotstuff.QCFormed, QC: qc})

	f.network.AssertCalled(t, "InjectConsensusInfo", hotstuff.CancelPollForVotes, uint64(7))

	// invokeProducer(qc.View+1) runs, but no commitment-and-metadata has
	// arrived for view 8 yet, so the Producer's own precondition check
	// never holds and it never reports the evidence as consumed:
	// proposalCert must survive so a later SendPayloadCommitmentAndMetadata
	// can still retry via the evidence branch. A pushed task is the trace
	// that the TimeoutQC evidence was recorded and acted on.
	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.NotNil(t, f.handler.proposalCert, "evidence must not be cleared until the Producer actually consumes it")
	require.Equal(t, 1, f.handler.tasks.Len())
}

func TestOnViewSyncFinalizeCancelsVotePollAtQCViewMinusOne(t *testing.T) {
	f := newFixture(t, 1)

	leaf := &model.Leaf{View: 9}
	vote, err := f.signer.CreateVote(leaf, model.ViewSyncVoteKind)
	require.NoError(t, err)
	qc, err := f.signer.CreateQC([]*model.Vote{vote})
	require.NoError(t, err)

	f.handler.onViewSyncFinalize(hotstuff.Event{Type: hotstuff.ViewSyncFinalizeCertificate2Recv, QC: qc})

	f.network.AssertCalled(t, "InjectConsensusInfo", hotstuff.CancelPollForVotes, uint64(8))

	// As above, a single-node committee makes self the leader at qc.View,
	// so invokeProducer(qc.View) runs — but again with no commitment for
	// that view yet, so the Producer never reports the evidence consumed
	// and proposalCert must survive for a later retry.
	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.NotNil(t, f.handler.proposalCert, "evidence must not be cleared until the Producer actually consumes it")
	require.Equal(t, 1, f.handler.tasks.Len())
}

// seedProducibleParent gives the store a leaf the handler's high QC can
// point at, so invokeProducer's GetLeaf lookup succeeds.
func seedProducibleParent(f *fixture, view uint64) *model.Leaf {
	genesis := &model.Leaf{View: 0}
	parent := &model.Leaf{View: view, ParentID: genesis.ID()}
	f.store.AddLeaf(parent)
	f.store.SetHighQC(&model.QuorumCertificate{Kind: model.QuorumQCKind, View: view, BlockID: parent.ID()})
	return parent
}

func TestOnSendCommitmentFiresDirectBranchOnConsecutiveHighQC(t *testing.T) {
	f := newFixture(t, 1)
	seedProducibleParent(f, 10) // highQC.View = 10

	f.handler.onSendCommitmentAndMetadata(hotstuff.Event{
		CommitmentAndMetadata: &model.CommitmentAndMetadata{BlockView: 11, PayloadCommitment: flow.Identifier{0x1}},
	})

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.Equal(t, 1, f.handler.tasks.Len(), "the direct consecutive-QC branch must invoke the producer")
}

func TestOnSendCommitmentFiresTimeoutEvidenceBranchAtQCViewPlusOne(t *testing.T) {
	f := newFixture(t, 2) // self is identities[0], leader at even views
	seedProducibleParent(f, 100)

	f.handler.mu.Lock()
	f.handler.proposalCert = &model.ViewChangeEvidence{Kind: model.TimeoutEvidence, QC: &model.QuorumCertificate{View: 3}}
	f.handler.mu.Unlock()

	// BlockView 4 is not consecutive with highQC.View=100, so only the
	// evidence branch (leader at QC.View+1 = 4, an even view) can fire.
	f.handler.onSendCommitmentAndMetadata(hotstuff.Event{
		CommitmentAndMetadata: &model.CommitmentAndMetadata{BlockView: 4, PayloadCommitment: flow.Identifier{0x1}},
	})

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.Equal(t, 1, f.handler.tasks.Len(), "the timeout-evidence branch must authorize QC.View+1, not QC.View")
}

func TestOnSendCommitmentDoesNotFireTimeoutEvidenceBranchAtQCViewDirectly(t *testing.T) {
	f := newFixture(t, 2) // self is identities[0], leader at even views
	seedProducibleParent(f, 100)

	f.handler.mu.Lock()
	// QC.View=4 itself is even (self would be leader there), but the
	// timeout-evidence branch must check QC.View+1 (=5, odd, not self).
	f.handler.proposalCert = &model.ViewChangeEvidence{Kind: model.TimeoutEvidence, QC: &model.QuorumCertificate{View: 4}}
	f.handler.mu.Unlock()

	f.handler.onSendCommitmentAndMetadata(hotstuff.Event{
		CommitmentAndMetadata: &model.CommitmentAndMetadata{BlockView: 5, PayloadCommitment: flow.Identifier{0x1}},
	})

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.Equal(t, 0, f.handler.tasks.Len())
}

func TestOnSendCommitmentFiresViewSyncEvidenceBranchAtQCViewDirectly(t *testing.T) {
	f := newFixture(t, 2) // self is identities[0], leader at even views
	seedProducibleParent(f, 100)

	f.handler.mu.Lock()
	f.handler.proposalCert = &model.ViewChangeEvidence{Kind: model.ViewSyncEvidence, QC: &model.QuorumCertificate{View: 4}}
	f.handler.mu.Unlock()

	f.handler.onSendCommitmentAndMetadata(hotstuff.Event{
		CommitmentAndMetadata: &model.CommitmentAndMetadata{BlockView: 4, PayloadCommitment: flow.Identifier{0x1}},
	})

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.Equal(t, 1, f.handler.tasks.Len(), "the view-sync-evidence branch must authorize QC.View directly")
}

// TestOnQuorumProposalRecvDropsProposalWhoseQCDoesNotAttestParentID covers
// the Byzantine case where a leader's justify-QC legitimately attests one
// block while the leaf's own ParentID declares a different one. This must
// be rejected before the leaf ever enters the store or is considered for
// a vote — letting it through would let a dishonest leader graft a leaf
// onto an unrelated parent chain undetected.
func TestOnQuorumProposalRecvDropsProposalWhoseQCDoesNotAttestParentID(t *testing.T) {
	f := newFixture(t, 1)

	genesisID := f.store.HighQC().BlockID
	decoy := &model.Leaf{View: 1, ParentID: genesisID}
	f.store.AddLeaf(decoy)

	leaf := &model.Leaf{
		View:       2,
		ParentID:   decoy.ID(),
		ProposerID: f.comm.Self(),
		QC:         &model.QuorumCertificate{Kind: model.QuorumQCKind, View: 1, BlockID: genesisID},
	}
	proposal, err := f.signer.CreateProposal(leaf, nil)
	require.NoError(t, err)

	f.handler.onQuorumProposalRecv(hotstuff.Event{Proposal: proposal})

	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	require.Nil(t, f.handler.currentProposal, "a proposal whose QC does not attest its declared parent must be dropped")
	_, ok := f.store.GetLeaf(leaf.ID())
	require.False(t, ok, "the mismatched leaf must never enter the store")
}
