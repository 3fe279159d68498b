// Package committee implements the membership adapter (§6): resolving
// the leader, stake membership and quorum threshold for a view. Grounded
// on the teacher's engine/consensus/hotstuff/viewstate.go (ViewState's
// IsSelf/IsSelfLeaderForView/LeaderForView shape) and cmd/consensus/
// main.go's committeeImpl wiring, which built a cached, snapshot-backed
// committee state; caching here is a github.com/hashicorp/golang-lru
// lookup from view to that view's leader, since the real teacher package
// (consensus/hotstuff/committees) is not present in the retrieval pack.
package committee

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

// Static implements hotstuff.Committee over a fixed identity list, valid
// for every view — appropriate for a replica whose committee does not
// rotate mid-run, mirroring the scope of the teacher's
// NewMainConsensusCommitteeState construction (referenced, not present,
// in cmd/consensus/main.go).
type Static struct {
	self       flow.Identifier
	identities flow.IdentityList
	cache      *lru.Cache
}

// New returns a Static committee over identities, with self as this
// node's own identifier. identities must be in a deterministic order
// (e.g. sorted by NodeID) so every honest replica computes the same
// leader rotation.
func New(self flow.Identifier, identities flow.IdentityList) (*Static, error) {
	cache, err := lru.New(1024)
	if err != nil {
		return nil, fmt.Errorf("could not create committee cache: %w", err)
	}
	return &Static{
		self:       self,
		identities: identities,
		cache:      cache,
	}, nil
}

func (c *Static) Self() flow.Identifier {
	return c.self
}

func (c *Static) IsSelf(id flow.Identifier) bool {
	return id == c.self
}

// Leader returns the round-robin leader for view, cached by view.
func (c *Static) Leader(view uint64) (flow.Identifier, error) {
	if cached, ok := c.cache.Get(view); ok {
		return cached.(flow.Identifier), nil
	}
	if len(c.identities) == 0 {
		return flow.Identifier{}, fmt.Errorf("empty committee")
	}
	leader := c.identities[view%uint64(len(c.identities))].NodeID
	c.cache.Add(view, leader)
	return leader, nil
}

func (c *Static) HasStake(id flow.Identifier) bool {
	return c.identities.Contains(id)
}

func (c *Static) Identities(view uint64) (flow.IdentityList, error) {
	return c.identities, nil
}

func (c *Static) Identity(view uint64, id flow.Identifier) (*flow.Identity, error) {
	identity := c.identities.Get(id)
	if identity == nil {
		return nil, fmt.Errorf("identity %s not found in committee", id)
	}
	return identity, nil
}

func (c *Static) TotalNodes() int {
	return c.identities.Count()
}

// Threshold returns the minimum signer count for a BFT quorum certificate
// over this committee: floor(2n/3) + 1.
func (c *Static) Threshold(view uint64) int {
	n := c.identities.Count()
	return (2*n)/3 + 1
}
