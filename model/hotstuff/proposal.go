package hotstuff

// Proposal is a leaf signed by its proposer for broadcast as
// QuorumProposalSend, optionally carrying view-change evidence when the
// leaf's justify-QC does not consecutively precede its view (§4.4, step 3).
type Proposal struct {
	Leaf               *Leaf
	SigData            []byte
	ViewChangeEvidence *ViewChangeEvidence
}

// View returns the proposal's view, i.e. the embedded leaf's view.
func (p *Proposal) View() uint64 {
	return p.Leaf.View
}
