package committee

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

func identity(id byte) *flow.Identity {
	return &flow.Identity{NodeID: flow.Identifier{id}, Stake: 1}
}

func TestLeaderRotatesRoundRobinAndCaches(t *testing.T) {
	identities := flow.IdentityList{identity(1), identity(2), identity(3)}
	comm, err := New(identities[0].NodeID, identities)
	require.NoError(t, err)

	leader0, err := comm.Leader(0)
	require.NoError(t, err)
	require.Equal(t, identities[0].NodeID, leader0)

	leader1, err := comm.Leader(1)
	require.NoError(t, err)
	require.Equal(t, identities[1].NodeID, leader1)

	leader3, err := comm.Leader(3) // wraps back to index 0
	require.NoError(t, err)
	require.Equal(t, identities[0].NodeID, leader3)

	// Repeated lookups for the same view must hit the cache and return
	// the identical answer.
	again, err := comm.Leader(1)
	require.NoError(t, err)
	require.Equal(t, leader1, again)
}

func TestLeaderOnEmptyCommitteeErrors(t *testing.T) {
	comm, err := New(flow.Identifier{1}, nil)
	require.NoError(t, err)

	_, err = comm.Leader(0)
	require.Error(t, err)
}

func TestHasStakeAndSelf(t *testing.T) {
	identities := flow.IdentityList{identity(1), identity(2)}
	comm, err := New(identities[0].NodeID, identities)
	require.NoError(t, err)

	require.True(t, comm.IsSelf(identities[0].NodeID))
	require.False(t, comm.IsSelf(identities[1].NodeID))
	require.True(t, comm.HasStake(identities[1].NodeID))
	require.False(t, comm.HasStake(flow.Identifier{0xff}))
}

func TestIdentitiesAndIdentityLookup(t *testing.T) {
	identities := flow.IdentityList{identity(1), identity(2)}
	comm, err := New(identities[0].NodeID, identities)
	require.NoError(t, err)

	all, err := comm.Identities(0)
	require.NoError(t, err)
	require.Equal(t, identities, all)

	found, err := comm.Identity(0, identities[1].NodeID)
	require.NoError(t, err)
	require.Equal(t, identities[1], found)

	_, err = comm.Identity(0, flow.Identifier{0xff})
	require.Error(t, err)
}

func TestTotalNodesAndThreshold(t *testing.T) {
	cases := []struct {
		n         int
		threshold int
	}{
		{1, 1},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
	}
	for _, c := range cases {
		identities := make(flow.IdentityList, c.n)
		for i := 0; i < c.n; i++ {
			identities[i] = identity(byte(i + 1))
		}
		comm, err := New(identities[0].NodeID, identities)
		require.NoError(t, err)
		require.Equal(t, c.n, comm.TotalNodes())
		require.Equal(t, c.threshold, comm.Threshold(0))
	}
}
