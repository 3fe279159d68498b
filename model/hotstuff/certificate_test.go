package hotstuff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpgradeCertificateCoversView(t *testing.T) {
	uc := &UpgradeCertificate{NewVersion: 2, NewVersionFirstView: 100, DecideBy: 90}

	assert.True(t, uc.CoversView(50), "views before the new version takes effect are in the interim")
	assert.True(t, uc.CoversView(99))
	assert.False(t, uc.CoversView(100), "the first view running the new version is not part of the interim")
	assert.False(t, uc.CoversView(150))
}

func TestCertificateKindString(t *testing.T) {
	assert.Equal(t, "quorum", QuorumQCKind.String())
	assert.Equal(t, "timeout", TimeoutQCKind.String())
	assert.Equal(t, "upgrade", UpgradeQCKind.String())
	assert.Equal(t, "view-sync-finalize", ViewSyncFinalizeQCKind.String())
	assert.Equal(t, "da", DAQCKind.String())
	assert.Equal(t, "unknown", CertificateKind(255).String())
}

func TestViewChangeEvidenceView(t *testing.T) {
	e := &ViewChangeEvidence{Kind: TimeoutEvidence, QC: &QuorumCertificate{View: 42}}
	assert.Equal(t, uint64(43), e.View(), "a timeout certificate for view 42 authorizes entry into view 43")
}
