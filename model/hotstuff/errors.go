package hotstuff

import (
	"fmt"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

// NoVoteError indicates the Voter decided not to vote on a proposal; the
// reason is always expected and logged at debug, never treated as a fault.
type NoVoteError struct {
	Msg string
}

func (e NoVoteError) Error() string {
	return fmt.Sprintf("not voting: %s", e.Msg)
}

// InvalidVoteError wraps a vote that failed signature or membership
// validation.
type InvalidVoteError struct {
	Vote *Vote
	Err  error
}

func (e InvalidVoteError) Error() string {
	return fmt.Sprintf("invalid vote from %s at view %d: %s", e.Vote.SignerID, e.Vote.View, e.Err)
}

func (e InvalidVoteError) Unwrap() error {
	return e.Err
}

// InvalidProposalError wraps a proposal that failed validation (bad
// signature, non-consecutive parent without evidence, and similar).
type InvalidProposalError struct {
	Proposal *Proposal
	Err      error
}

func (e InvalidProposalError) Error() string {
	return fmt.Sprintf("invalid proposal at view %d: %s", e.Proposal.View(), e.Err)
}

func (e InvalidProposalError) Unwrap() error {
	return e.Err
}

// StaleVoteError indicates a vote (or share) arrived for a view the
// replica has already pruned past.
type StaleVoteError struct {
	Vote              *Vote
	HighestPrunedView uint64
}

func (e StaleVoteError) Error() string {
	return fmt.Sprintf("stale vote for view %d, highest pruned view is %d", e.Vote.View, e.HighestPrunedView)
}

// MissingBlockError indicates an ancestor commit referenced by a QC or
// child leaf is not present in the store (§4.1, visit_leaf_ancestors).
type MissingBlockError struct {
	View    uint64
	BlockID flow.Identifier
}

func (e MissingBlockError) Error() string {
	return fmt.Sprintf("missing block %s at view %d", e.BlockID, e.View)
}
