// Package idgen generates the 21-char URL-safe ids Momo uses for documents,
// chunks, and memories. No vendored dependency in the example corpus
// produces this exact id shape (nanoid-style), so this is a small stdlib
// implementation over crypto/rand rather than a third-party pull.
package idgen

import (
	"crypto/rand"
	"fmt"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	length   = 21
)

// New returns a fresh 21-character URL-safe id.
func New() string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken;
		// there is no sane fallback, so surface it loudly.
		panic(fmt.Sprintf("idgen: crypto/rand unavailable: %v", err))
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}
