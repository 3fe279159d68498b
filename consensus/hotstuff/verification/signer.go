// Package verification implements hotstuff.SignerVerifier: message
// construction, BLS signing and verification for votes, proposals and
// certificates. Grounded on the teacher's
// engine/consensus/hotstuff/verification/single_signer.go
// (SingleSigner.CreateProposal/CreateVote/CreateQC — sign-then-aggregate),
// with BLS supplied by consensus/hotstuff/signature (cross-pollinated from
// uhyunpark-hyperlicked, since the teacher's own flow-go/crypto binding is
// not in the retrieval pack).
package verification

import (
	"fmt"

	"github.com/cloudflare/circl/sign/bls"

	"github.com/dapperlabs/hotshot-consensus/consensus/hotstuff/signature"
	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Signer signs and verifies consensus messages on behalf of a single
// node's BLS keypair, aggregating via signature.Aggregator.
type Signer struct {
	selfID  flow.Identifier
	privKey *bls.PrivateKey[bls.KeyMinSig]
	agg     *signature.Aggregator
}

// NewSigner returns a Signer for selfID using privKey.
func NewSigner(selfID flow.Identifier, privKey *bls.PrivateKey[bls.KeyMinSig]) *Signer {
	return &Signer{
		selfID:  selfID,
		privKey: privKey,
		agg:     signature.NewAggregator(),
	}
}

// CreateVote signs a vote of the given kind for leaf.
func (s *Signer) CreateVote(leaf *model.Leaf, kind model.VoteKind) (*model.Vote, error) {
	msg := voteMessage(kind, leaf.View, leaf.ID())
	sig, err := bls.Sign(s.privKey, msg)
	if err != nil {
		return nil, fmt.Errorf("could not sign vote: %w", err)
	}
	sigData, err := sig.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal vote signature: %w", err)
	}
	return &model.Vote{
		Kind:     kind,
		View:     leaf.View,
		BlockID:  leaf.ID(),
		SignerID: s.selfID,
		SigData:  sigData,
	}, nil
}

// CreateProposal signs a proposal for leaf, embedding evidence when
// leaf.View does not consecutively follow its justify-QC.
func (s *Signer) CreateProposal(leaf *model.Leaf, evidence *model.ViewChangeEvidence) (*model.Proposal, error) {
	msg := proposalMessage(leaf.ID())
	sig, err := bls.Sign(s.privKey, msg)
	if err != nil {
		return nil, fmt.Errorf("could not sign proposal: %w", err)
	}
	sigData, err := sig.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal proposal signature: %w", err)
	}
	return &model.Proposal{
		Leaf:               leaf,
		SigData:            sigData,
		ViewChangeEvidence: evidence,
	}, nil
}

// CreateQC aggregates votes into a certificate. Every vote must agree on
// Kind, View and BlockID; CreateQC does not itself check thresholds.
func (s *Signer) CreateQC(votes []*model.Vote) (*model.QuorumCertificate, error) {
	if len(votes) == 0 {
		return nil, fmt.Errorf("cannot create certificate from zero votes")
	}
	kind, view, blockID := votes[0].Kind, votes[0].View, votes[0].BlockID
	sigs := make([][]byte, 0, len(votes))
	signers := make([]flow.Identifier, 0, len(votes))
	for _, vote := range votes {
		if vote.Kind != kind || vote.View != view || vote.BlockID != blockID {
			return nil, fmt.Errorf("inconsistent vote set: cannot aggregate votes for different targets")
		}
		sigs = append(sigs, vote.SigData)
		signers = append(signers, vote.SignerID)
	}
	sigData, err := s.agg.Aggregate(sigs)
	if err != nil {
		return nil, fmt.Errorf("could not aggregate votes: %w", err)
	}
	return &model.QuorumCertificate{
		Kind:      kind.CertificateKind(),
		View:      view,
		BlockID:   blockID,
		SignerIDs: signers,
		SigData:   sigData,
	}, nil
}

// VerifyVote checks vote's signature against signer's public key.
func (s *Signer) VerifyVote(vote *model.Vote, signer *flow.Identity) error {
	pk := new(bls.PublicKey[bls.KeyMinSig])
	if err := pk.UnmarshalBinary(signer.PublicKey); err != nil {
		return fmt.Errorf("could not parse signer public key: %w", err)
	}
	sig := new(bls.SigMinSig)
	if err := sig.UnmarshalBinary(vote.SigData); err != nil {
		return fmt.Errorf("could not parse vote signature: %w", err)
	}
	msg := voteMessage(vote.Kind, vote.View, vote.BlockID)
	if !bls.Verify(pk, msg, sig) {
		return fmt.Errorf("vote signature verification failed for signer %s", signer.NodeID)
	}
	return nil
}

// VerifyQC checks an aggregate certificate against the identities that
// signed it (qc.SignerIDs, resolved against identities).
func (s *Signer) VerifyQC(qc *model.QuorumCertificate, identities flow.IdentityList) error {
	msg := certMessage(qc)
	msgs := make([][]byte, len(qc.SignerIDs))
	signers := make(flow.IdentityList, len(qc.SignerIDs))
	for i, id := range qc.SignerIDs {
		identity := identities.Get(id)
		if identity == nil {
			return fmt.Errorf("signer %s is not a committee member", id)
		}
		msgs[i] = msg
		signers[i] = identity
	}
	return s.agg.VerifyAggregate(qc.SigData, msgs, signers)
}

// VerifyProposal checks a proposal's signature against its proposer.
func (s *Signer) VerifyProposal(proposal *model.Proposal, proposer *flow.Identity) error {
	pk := new(bls.PublicKey[bls.KeyMinSig])
	if err := pk.UnmarshalBinary(proposer.PublicKey); err != nil {
		return fmt.Errorf("could not parse proposer public key: %w", err)
	}
	sig := new(bls.SigMinSig)
	if err := sig.UnmarshalBinary(proposal.SigData); err != nil {
		return fmt.Errorf("could not parse proposal signature: %w", err)
	}
	msg := proposalMessage(proposal.Leaf.ID())
	if !bls.Verify(pk, msg, sig) {
		return fmt.Errorf("proposal signature verification failed for proposer %s", proposer.NodeID)
	}
	return nil
}

// VerifyVIDShare checks share's signature against signer's public key.
// VID production itself is an out-of-scope collaborator (§1); the core
// only verifies shares it receives, per §4.6's acceptance rule.
func (s *Signer) VerifyVIDShare(share *model.VIDShare, signer *flow.Identity) error {
	pk := new(bls.PublicKey[bls.KeyMinSig])
	if err := pk.UnmarshalBinary(signer.PublicKey); err != nil {
		return fmt.Errorf("could not parse signer public key: %w", err)
	}
	sig := new(bls.SigMinSig)
	if err := sig.UnmarshalBinary(share.Signature); err != nil {
		return fmt.Errorf("could not parse VID share signature: %w", err)
	}
	msg := vidShareMessage(share.View, share.PayloadCommitment)
	if !bls.Verify(pk, msg, sig) {
		return fmt.Errorf("VID share signature verification failed for signer %s", signer.NodeID)
	}
	return nil
}

func vidShareMessage(view uint64, payloadCommitment flow.Identifier) []byte {
	msg := make([]byte, 0, 8+len(payloadCommitment))
	msg = appendUint64(msg, view)
	msg = append(msg, payloadCommitment[:]...)
	return msg
}

// voteMessage tags the message with the kind of certificate the vote
// contributes to, so an aggregate of such votes verifies against
// certMessage.
func voteMessage(kind model.VoteKind, view uint64, blockID flow.Identifier) []byte {
	msg := make([]byte, 0, 9+len(blockID))
	msg = append(msg, byte(kind.CertificateKind()))
	msg = appendUint64(msg, view)
	msg = append(msg, blockID[:]...)
	return msg
}

func proposalMessage(leafID flow.Identifier) []byte {
	return append([]byte("proposal:"), leafID[:]...)
}

func certMessage(qc *model.QuorumCertificate) []byte {
	msg := make([]byte, 0, 9+len(qc.BlockID))
	msg = append(msg, byte(qc.Kind))
	msg = appendUint64(msg, qc.View)
	msg = append(msg, qc.BlockID[:]...)
	return msg
}

func appendUint64(b []byte, v uint64) []byte {
	for i := 7; i >= 0; i-- {
		b = append(b, byte(v>>(8*uint(i))))
	}
	return b
}
