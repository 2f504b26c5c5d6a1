package chain

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"

	"idoracle/internal/oracle/models"
	"idoracle/pkg/domain"
)

// Hash identifies a block.
type Hash [blake2b.Size256]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// ExtrinsicResult records how one extrinsic in a block executed. A failed
// extrinsic is still included; it just had no effect.
type ExtrinsicResult struct {
	Index     int              `json:"index"`
	Call      string           `json:"call"`
	Signed    bool             `json:"signed"`
	Account   domain.AccountID `json:"account"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	Event     *models.Event    `json:"event,omitempty"`
}

// Block is an executed block. Height 0 is the empty genesis block.
type Block struct {
	Height     uint64            `json:"height"`
	Hash       Hash              `json:"hash"`
	ParentHash Hash              `json:"parent_hash"`
	ProducedAt time.Time         `json:"produced_at"`
	Extrinsics []ExtrinsicResult `json:"extrinsics"`
}

// Events returns the events emitted by the block's successful extrinsics, in
// execution order.
func (b Block) Events() []models.Event {
	var events []models.Event
	for _, x := range b.Extrinsics {
		if x.Event != nil {
			events = append(events, *x.Event)
		}
	}
	return events
}

// seal computes the block hash over its height, parent and extrinsic results.
func (b *Block) seal() {
	h, _ := blake2b.New256(nil)
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], b.Height)
	h.Write(height[:])
	h.Write(b.ParentHash[:])
	for _, x := range b.Extrinsics {
		// Events carry wall-clock time, which is not part of consensus.
		x.Event = nil
		x.RequestID = ""
		encoded, _ := json.Marshal(x)
		h.Write(encoded)
	}
	copy(b.Hash[:], h.Sum(nil))
}
