package hotstuff

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/dapperlabs/hotshot-consensus/model/flow"
)

// canonicalEncoder builds a deterministic byte encoding of a leaf or vote
// for hashing, following the same "concatenate fixed-width fields then
// hash" approach the teacher's HashOfBlock helper uses for its own block
// commitments (see uhyunpark-hyperlicked's consensus.HashOfBlock).
type canonicalEncoder struct {
	h   []byte
	buf [8]byte
}

func newCanonicalEncoder() *canonicalEncoder {
	return &canonicalEncoder{}
}

func (e *canonicalEncoder) writeUint64(v uint64) {
	binary.BigEndian.PutUint64(e.buf[:], v)
	e.h = append(e.h, e.buf[:]...)
}

func (e *canonicalEncoder) writeBytes(b []byte) {
	e.writeUint64(uint64(len(b)))
	e.h = append(e.h, b...)
}

func (e *canonicalEncoder) sum() flow.Identifier {
	return sha256Sum(e.h)
}

func sha256Sum(b []byte) flow.Identifier {
	return sha256.Sum256(b)
}
