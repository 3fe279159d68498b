package pacemaker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

type mockNetwork struct{ mock.Mock }

func (m *mockNetwork) InjectConsensusInfo(intent hotstuff.PollIntent, view uint64) {
	m.Called(intent, view)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) CreateVote(leaf *model.Leaf, kind model.VoteKind) (*model.Vote, error) {
	args := m.Called(leaf, kind)
	vote, _ := args.Get(0).(*model.Vote)
	return vote, args.Error(1)
}
func (m *mockSigner) CreateProposal(leaf *model.Leaf, evidence *model.ViewChangeEvidence) (*model.Proposal, error) {
	panic("not used by pacemaker")
}
func (m *mockSigner) CreateQC(votes []*model.Vote) (*model.QuorumCertificate, error) {
	panic("not used by pacemaker")
}
func (m *mockSigner) VerifyVote(vote *model.Vote, signer *flow.Identity) error { return nil }
func (m *mockSigner) VerifyQC(qc *model.QuorumCertificate, identities flow.IdentityList) error {
	return nil
}
func (m *mockSigner) VerifyProposal(proposal *model.Proposal, proposer *flow.Identity) error {
	return nil
}
func (m *mockSigner) VerifyVIDShare(share *model.VIDShare, signer *flow.Identity) error {
	return nil
}

type mockStoreReader struct{ mock.Mock }

func (m *mockStoreReader) HighQC() *model.QuorumCertificate { return nil }
func (m *mockStoreReader) LockedView() uint64                { return 0 }
func (m *mockStoreReader) LastDecidedView() uint64            { return 0 }
func (m *mockStoreReader) GetLeaf(id flow.Identifier) (*model.Leaf, bool) { return nil, false }
func (m *mockStoreReader) SavedPayload(view uint64) (*model.Payload, bool) { return nil, false }
func (m *mockStoreReader) VIDShareFor(view uint64, recipient flow.PublicKey) (*model.VIDShare, bool) {
	return nil, false
}
func (m *mockStoreReader) DACert(view uint64) (*model.QuorumCertificate, bool) { return nil, false }
func (m *mockStoreReader) DecidedUpgradeCert() *model.UpgradeCertificate {
	args := m.Called()
	cert, _ := args.Get(0).(*model.UpgradeCertificate)
	return cert
}

type mockConsumer struct{ mock.Mock }

func (m *mockConsumer) OnDecide(leafChain []*hotstuff.LeafInfo, qc *model.QuorumCertificate, blockSize int) {
}
func (m *mockConsumer) OnViewFinished(view uint64) { m.Called(view) }
func (m *mockConsumer) OnViewTimeout(view uint64)  { m.Called(view) }
func (m *mockConsumer) OnReplicaViewTimeout(view uint64) { m.Called(view) }

type mockMetrics struct{ mock.Mock }

func (m *mockMetrics) ViewEntered(view uint64) { m.Called(view) }
func (m *mockMetrics) TimeoutOccurred()        { m.Called() }
func (m *mockMetrics) InvalidQCObserved()      {}
func (m *mockMetrics) Decided(view uint64, decidedAt time.Time, viewsPerDecide uint64) {}

func newTestPacemaker(t *testing.T) (*Pacemaker, *mockNetwork, *mockSigner, *mockStoreReader, *mockConsumer, *mockMetrics, *hotstuff.EventBus) {
	t.Helper()
	net := &mockNetwork{}
	net.On("InjectConsensusInfo", mock.Anything, mock.Anything).Return()
	signer := &mockSigner{}
	store := &mockStoreReader{}
	store.On("DecidedUpgradeCert").Return((*model.UpgradeCertificate)(nil))
	consumer := &mockConsumer{}
	consumer.On("OnViewFinished", mock.Anything).Return()
	metrics := &mockMetrics{}
	metrics.On("ViewEntered", mock.Anything).Return()
	bus := hotstuff.NewEventBus(8)
	version := atomic.NewUint64(1)

	p := New(Config{Timeout: time.Hour, RoundStartDelay: 0}, net, nil, signer, store, bus, consumer, metrics, version, zerolog.Nop())
	return p, net, signer, store, consumer, metrics, bus
}

func TestUpdateViewAdvancesAndIsIdempotentBelowCurrent(t *testing.T) {
	p, _, _, _, consumer, _, bus := newTestPacemaker(t)
	sub := bus.Subscribe()

	p.UpdateView(3)
	require.Equal(t, uint64(3), p.CurView())
	evt := <-sub
	require.Equal(t, hotstuff.ViewChange, evt.Type)
	require.Equal(t, uint64(3), evt.View)

	p.UpdateView(1) // stale, must be a no-op
	require.Equal(t, uint64(3), p.CurView())

	consumer.AssertCalled(t, "OnViewFinished", uint64(0))
}

func TestUpdateViewSwapsVersionWhenUpgradeTakesEffect(t *testing.T) {
	p, _, _, store, _, _, bus := newTestPacemaker(t)
	store.ExpectedCalls = nil
	store.On("DecidedUpgradeCert").Return(&model.UpgradeCertificate{NewVersion: 9, NewVersionFirstView: 3, DecideBy: 10})
	sub := bus.Subscribe()

	p.UpdateView(3)

	var sawUpgrade bool
	for i := 0; i < 2; i++ {
		evt := <-sub
		if evt.Type == hotstuff.VersionUpgrade {
			sawUpgrade = true
			require.Equal(t, uint64(9), evt.NewVersion)
		}
	}
	require.True(t, sawUpgrade)
	require.Equal(t, uint64(9), p.version.Load())
}

func TestTimeoutIgnoredWhenViewAlreadyAdvancedPast(t *testing.T) {
	p, _, signer, _, _, _, bus := newTestPacemaker(t)
	sub := bus.Subscribe()
	p.UpdateView(5)
	<-sub // drain the ViewChange event

	p.Timeout(3) // stale: cur_view(5) > 3

	signer.AssertNotCalled(t, "CreateVote", mock.Anything, mock.Anything)
	select {
	case <-sub:
		t.Fatal("a stale timeout must not broadcast a timeout vote")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimeoutSignsAndBroadcastsVote(t *testing.T) {
	p, _, signer, _, consumer, metrics, bus := newTestPacemaker(t)
	sub := bus.Subscribe()
	vote := &model.Vote{Kind: model.TimeoutVoteKind, View: 5}
	signer.On("CreateVote", mock.Anything, model.TimeoutVoteKind).Return(vote, nil)
	consumer.On("OnViewTimeout", uint64(5)).Return()
	consumer.On("OnReplicaViewTimeout", uint64(5)).Return()
	metrics.On("TimeoutOccurred").Return()

	p.Timeout(5)

	evt := <-sub
	require.Equal(t, hotstuff.TimeoutVoteSend, evt.Type)
	require.Equal(t, vote, evt.Vote)
	consumer.AssertExpectations(t)
	metrics.AssertExpectations(t)
}
