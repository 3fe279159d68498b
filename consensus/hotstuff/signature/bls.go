// Package signature implements BLS signature aggregation for quorum
// certificates, grounded on uhyunpark-hyperlicked/pkg/crypto/bls.go's use
// of github.com/cloudflare/circl/sign/bls — the teacher's own
// dapperlabs/flow-go/crypto BLS binding is not present in the retrieval
// pack, so this is the closest in-pack equivalent for the same concern
// (the teacher's sig_aggregator.go interface this package implements).
package signature

import (
	"fmt"

	"github.com/cloudflare/circl/sign/bls"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Aggregator aggregates and verifies BLS min-sig signatures (Aggregate,
// VerifyAggregate).
type Aggregator struct{}

// NewAggregator returns a ready-to-use BLS aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate combines per-signer BLS signatures into a single aggregate
// signature, in the order the votes were supplied.
func (a *Aggregator) Aggregate(sigs [][]byte) ([]byte, error) {
	parsed := make([]*bls.SigMinSig, 0, len(sigs))
	for i, raw := range sigs {
		sig := new(bls.SigMinSig)
		if err := sig.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("could not parse signature %d: %w", i, err)
		}
		parsed = append(parsed, sig)
	}
	agg, err := bls.AggregateSignatures[bls.KeyMinSig](parsed)
	if err != nil {
		return nil, fmt.Errorf("could not aggregate signatures: %w", err)
	}
	out, err := agg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not marshal aggregate signature: %w", err)
	}
	return out, nil
}

// VerifyAggregate checks an aggregate signature against the distinct
// messages and public keys of its contributing signers.
func (a *Aggregator) VerifyAggregate(sigData []byte, msgs [][]byte, signers flow.IdentityList) error {
	if len(msgs) != len(signers) {
		return fmt.Errorf("message count %d does not match signer count %d", len(msgs), len(signers))
	}
	agg := new(bls.SigMinSig)
	if err := agg.UnmarshalBinary(sigData); err != nil {
		return fmt.Errorf("could not parse aggregate signature: %w", err)
	}

	pubKeys := make([]*bls.PublicKey[bls.KeyMinSig], 0, len(signers))
	for i, identity := range signers {
		pk := new(bls.PublicKey[bls.KeyMinSig])
		if err := pk.UnmarshalBinary(identity.PublicKey); err != nil {
			return fmt.Errorf("could not parse public key for signer %d: %w", i, err)
		}
		pubKeys = append(pubKeys, pk)
	}

	ok := bls.VerifyAggregate(pubKeys, msgs, agg)
	if !ok {
		return fmt.Errorf("aggregate signature verification failed")
	}
	return nil
}

// SignerBitmapKey canonicalizes a QC's list of signer identifiers into a
// stable join key by concatenating their string forms in order.
func SignerBitmapKey(qc *model.QuorumCertificate) string {
	var key string
	for _, id := range qc.SignerIDs {
		key += id.String()
	}
	return key
}
