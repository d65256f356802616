package pasd

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// uidAlphabet is the 64-symbol set NewUID draws from; index with the
// low 6 bits of a byte or a nanosecond-counter word.
const uidAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

// NewUID returns a 12-character key identifier: 7 symbols from OS
// randomness followed by 5 symbols derived from the current
// sub-second clock reading. It is not a security boundary — collision
// avoidance, not credential material — so no error return is needed;
// a crypto/rand failure is treated as unrecoverable runtime damage.
func NewUID() string {
	var randBuf [8]byte
	if _, err := rand.Read(randBuf[:]); err != nil {
		panic("pasd: system randomness unavailable: " + err.Error())
	}
	rd := binary.LittleEndian.Uint64(randBuf[:])
	ns := uint32(time.Now().Nanosecond())

	out := make([]byte, 0, 12)
	for i := 0; i < 7; i++ {
		out = append(out, uidAlphabet[rd&63])
		rd >>= 6
	}
	for i := 0; i < 5; i++ {
		out = append(out, uidAlphabet[ns&63])
		ns >>= 6
	}
	return string(out)
}
