package crypto

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// OriginHash returns a one-way hash of a client address, keyed with a
// salt that rotates at local midnight. The raw address is never stored;
// the hash lets the flood guard correlate writes from one address for at
// most a day. The same address hashes identically all day and to a
// different value the next day.
func OriginHash(addr, secret string, now time.Time) string {
	salt := secret + now.Format("2006-01-02")

	key := []byte(salt)
	if len(key) > 64 {
		key = key[:64] // blake2b key size limit
	}

	h, err := blake2b.New256(key)
	if err != nil {
		// Only reachable with a key over 64 bytes, which is truncated above.
		panic(err)
	}
	h.Write([]byte(addr))
	return hex.EncodeToString(h.Sum(nil))
}
