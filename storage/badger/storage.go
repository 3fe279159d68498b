// Package badger implements hotstuff.StorageAdapter: the consumed
// persistent-storage surface for VID shares and the high QC (§6).
// Grounded on the teacher's storage/badger/{views,commits}.go pattern of
// a thin wrapper translating domain operations into badger reads/writes,
// sharing the same database handle as consensus/hotstuff/persister.
package badger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

// Storage is a badger-backed hotstuff.StorageAdapter.
type Storage struct {
	db *badger.DB
}

// New wraps an already-open badger database.
func New(db *badger.DB) *Storage {
	return &Storage{db: db}
}

// AppendVID durably records a VID share this node has computed or
// received, keyed by (view, recipient) so repeated appends for the same
// share are idempotent overwrites.
func (s *Storage) AppendVID(share *model.VIDShare) error {
	data, err := json.Marshal(share)
	if err != nil {
		return fmt.Errorf("could not encode VID share: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(vidKey(share.View, share.Recipient), data)
	})
}

// UpdateHighQC durably records qc as the highest-view certificate this
// node has observed.
func (s *Storage) UpdateHighQC(qc *model.QuorumCertificate) error {
	data, err := json.Marshal(qc)
	if err != nil {
		return fmt.Errorf("could not encode high QC: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("consensus/storage/high_qc"), data)
	})
}

func vidKey(view uint64, recipient []byte) []byte {
	key := make([]byte, 0, len("consensus/vid/")+8+len(recipient))
	key = append(key, []byte("consensus/vid/")...)
	var viewBytes [8]byte
	binary.BigEndian.PutUint64(viewBytes[:], view)
	key = append(key, viewBytes[:]...)
	key = append(key, recipient...)
	return key
}
