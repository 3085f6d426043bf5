package assets

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/pithecene-io/kiln/types"
)

// ContentHash returns the short content hash embedded in output filenames:
// the first types.HashLength hex chars of the BLAKE3 digest of data.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:types.HashLength/2])
}
