package hotstuff

import (
	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

// CertificateKind distinguishes the data a QuorumCertificate binds.
type CertificateKind uint8

const (
	// QuorumQCKind binds a leaf commitment.
	QuorumQCKind CertificateKind = iota + 1
	// TimeoutQCKind binds a view number.
	TimeoutQCKind
	// UpgradeQCKind binds a version-change descriptor.
	UpgradeQCKind
	// ViewSyncFinalizeQCKind binds a target view.
	ViewSyncFinalizeQCKind
	// DAQCKind binds a payload commitment, signed by the DA committee.
	DAQCKind
)

func (k CertificateKind) String() string {
	switch k {
	case QuorumQCKind:
		return "quorum"
	case TimeoutQCKind:
		return "timeout"
	case UpgradeQCKind:
		return "upgrade"
	case ViewSyncFinalizeQCKind:
		return "view-sync-finalize"
	case DAQCKind:
		return "da"
	default:
		return "unknown"
	}
}

// QuorumCertificate is an aggregate of signed votes from ≥ threshold of a
// quorum's members, attesting to BlockID at View. BlockID carries whatever
// the Kind binds: a leaf commitment for QuorumQCKind, the view's own
// commitment for TimeoutQCKind/ViewSyncFinalizeQCKind, a payload
// commitment for DAQCKind, or an upgrade descriptor digest for
// UpgradeQCKind.
type QuorumCertificate struct {
	Kind      CertificateKind
	View      uint64
	BlockID   flow.Identifier
	SignerIDs []flow.Identifier
	SigData   []byte
}

// ViewChangeKind distinguishes the evidence authorizing a non-consecutive
// view jump.
type ViewChangeKind uint8

const (
	TimeoutEvidence ViewChangeKind = iota + 1
	ViewSyncEvidence
)

// ViewChangeEvidence is the tagged union `E` from §3: either a TimeoutQC or
// a ViewSyncFinalizeQC, both of which authorize proposing/voting at a view
// that does not consecutively follow high_qc.
type ViewChangeEvidence struct {
	Kind ViewChangeKind
	QC   *QuorumCertificate
}

// View returns the view this evidence authorizes entry into: the view after
// the certificate's own for a timeout certificate, the certificate's own
// view for a view-sync finalize certificate.
func (e *ViewChangeEvidence) View() uint64 {
	if e.Kind == TimeoutEvidence {
		return e.QC.View + 1
	}
	return e.QC.View
}

// UpgradeCertificate announces a protocol-version transition at a future
// view, per §3.
type UpgradeCertificate struct {
	NewVersion          uint64
	NewVersionFirstView uint64
	DecideBy            uint64
	QC                  *QuorumCertificate
}

// CoversView reports whether the interim between the certificate's
// adoption and NewVersionFirstView includes the given view — i.e. whether
// a proposal at that view must carry the null-block payload (§4.4a,
// item 3).
func (u *UpgradeCertificate) CoversView(view uint64) bool {
	return view < u.NewVersionFirstView
}
