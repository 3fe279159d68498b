package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexStringToIdentifierRoundTrip(t *testing.T) {
	id := Identifier{1, 2, 3, 4}
	parsed, err := HexStringToIdentifier(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestHexStringToIdentifierRejectsWrongLength(t *testing.T) {
	_, err := HexStringToIdentifier("abcd")
	assert.Error(t, err)
}

func TestHexStringToIdentifierRejectsInvalidHex(t *testing.T) {
	_, err := HexStringToIdentifier("not-hex-at-all-------------------------------------")
	assert.Error(t, err)
}

func TestIdentifierIsZero(t *testing.T) {
	assert.True(t, ZeroID.IsZero())
	assert.False(t, Identifier{1}.IsZero())
}

func TestIdentityListLookups(t *testing.T) {
	a := &Identity{NodeID: Identifier{1}, Stake: 1}
	b := &Identity{NodeID: Identifier{2}, Stake: 1}
	list := IdentityList{a, b}

	assert.Equal(t, a, list.Get(Identifier{1}))
	assert.Nil(t, list.Get(Identifier{9}))
	assert.True(t, list.Contains(Identifier{2}))
	assert.False(t, list.Contains(Identifier{9}))
	assert.Equal(t, 2, list.Count())
}
