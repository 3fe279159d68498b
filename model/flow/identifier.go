// Package flow holds the identity and role types shared across the
// consensus replica. It mirrors the subset of the teacher's model/flow
// package that the consensus core actually needs.
package flow

import (
	"encoding/hex"
	"fmt"
)

// Identifier is a content-addressed 32-byte digest used as both node
// identifier and leaf/block commitment.
type Identifier [32]byte

// ZeroID is the zero-value identifier, used for the genesis parent commit.
var ZeroID = Identifier{}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the identifier is the zero digest.
func (id Identifier) IsZero() bool {
	return id == ZeroID
}

// HexStringToIdentifier parses a hex-encoded identifier.
func HexStringToIdentifier(hexString string) (Identifier, error) {
	var id Identifier
	b, err := hex.DecodeString(hexString)
	if err != nil {
		return id, fmt.Errorf("could not decode hex string: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid identifier length %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Role describes the function a node serves within the protocol.
type Role uint8

const (
	RoleConsensus Role = iota + 1
	RoleDA
	RoleExecution
)

func (r Role) String() string {
	switch r {
	case RoleConsensus:
		return "consensus"
	case RoleDA:
		return "da"
	case RoleExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// PublicKey is an opaque verification key; concrete bytes are produced by
// the BLS signature scheme in consensus/hotstuff/verification.
type PublicKey []byte

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk)
}

// Identity represents one member of a quorum (consensus committee or DA
// committee) as seen at a given view.
type Identity struct {
	NodeID    Identifier
	Address   string
	Role      Role
	Stake     uint64
	PublicKey PublicKey
}

func (iy *Identity) String() string {
	return fmt.Sprintf("%s-%s@%s", iy.Role, iy.NodeID, iy.Address)
}

// IdentityList is a list of identities with convenience lookups, mirroring
// the teacher's flow.IdentityList helper methods.
type IdentityList []*Identity

// Get returns the identity for the given node ID, or nil.
func (il IdentityList) Get(nodeID Identifier) *Identity {
	for _, identity := range il {
		if identity.NodeID == nodeID {
			return identity
		}
	}
	return nil
}

// Contains reports whether nodeID is a member of the list.
func (il IdentityList) Contains(nodeID Identifier) bool {
	return il.Get(nodeID) != nil
}

// Count returns the number of identities in the list.
func (il IdentityList) Count() int {
	return len(il)
}
