package booking

import (
	"encoding/binary"
	"strconv"

	"github.com/google/uuid"
)

// newPNR returns a random 10-digit PNR without a leading zero.
func newPNR() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8])
	return strconv.FormatUint(1_000_000_000+n%9_000_000_000, 10)
}
