// Package persister implements hotstuff.Persister: durable storage of
// high_qc and the last voted view, grounded on the teacher's
// storage/badger/{views,commits}.go pattern of a thin operation-keyed
// wrapper around github.com/dgraph-io/badger/v2.
package persister

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	model "github.com/dapperlabs/hotshot-consensus/model/hotstuff"
)

var (
	keyHighQC = []byte("consensus/high_qc")
	keyVoted  = []byte("consensus/last_voted_view")
)

// Persister is a badger-backed implementation of hotstuff.Persister.
type Persister struct {
	db *badger.DB
}

// New wraps an already-open badger database.
func New(db *badger.DB) *Persister {
	return &Persister{db: db}
}

// PutHighQC durably records qc as the highest-view certificate observed.
func (p *Persister) PutHighQC(qc *model.QuorumCertificate) error {
	data, err := json.Marshal(qc)
	if err != nil {
		return fmt.Errorf("could not encode high QC: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyHighQC, data)
	})
}

// GetHighQC reads back the most recently persisted high QC. A nil, nil
// result means none has ever been persisted.
func (p *Persister) GetHighQC() (*model.QuorumCertificate, error) {
	var qc model.QuorumCertificate
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHighQC)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read high QC: %w", err)
	}
	return &qc, nil
}

// PutVoted records that this node has now voted at view, so a restart
// never double-votes (§3, single-vote invariant).
func (p *Persister) PutVoted(view uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], view)
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyVoted, buf[:])
	})
}

// GetVoted reads back the last view this node voted at, or 0 if never.
func (p *Persister) GetVoted() (uint64, error) {
	var view uint64
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyVoted)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			view = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not read last voted view: %w", err)
	}
	return view, nil
}
