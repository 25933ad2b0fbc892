package rng

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEmptyServerSeed is returned when float derivation is attempted without
// seed material.
var ErrEmptyServerSeed = errors.New("rng: empty server seed")

// byteGenerator streams HMAC-SHA256 output keyed by the server seed. Each
// 32-byte block hashes "clientSeed:nonce:block", so any number of bytes can
// be drawn from one (serverSeed, clientSeed, nonce) triple.
type byteGenerator struct {
	serverSeed string
	clientSeed string
	nonce      uint64
	block      int
	cursor     int
	buffer     [32]byte
}

func (bg *byteGenerator) next() byte {
	if bg.cursor == 0 || bg.cursor >= 32 {
		if bg.cursor >= 32 {
			bg.block++
		}
		h := hmac.New(sha256.New, []byte(bg.serverSeed))
		fmt.Fprintf(h, "%s:%d:%d", bg.clientSeed, bg.nonce, bg.block)
		copy(bg.buffer[:], h.Sum(nil))
		bg.cursor = 0
	}
	b := bg.buffer[bg.cursor]
	bg.cursor++
	return b
}

// Floats derives count reproducible floats in [0,1) from a seed pair.
// Four bytes feed each float, giving 2^32 distinct values per draw.
func Floats(serverSeed, clientSeed string, nonce uint64, count int) ([]float64, error) {
	if serverSeed == "" {
		return nil, ErrEmptyServerSeed
	}

	bg := &byteGenerator{serverSeed: serverSeed, clientSeed: clientSeed, nonce: nonce}
	floats := make([]float64, count)
	for i := range floats {
		var f float64
		div := 256.0
		for j := 0; j < 4; j++ {
			f += float64(bg.next()) / div
			div *= 256.0
		}
		floats[i] = f
	}
	return floats, nil
}

// NewServerSeed returns 32 bytes of cryptographically secure randomness,
// hex encoded.
func NewServerSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Commitment returns the SHA-256 hex digest of a server seed. The digest is
// published before any bet uses the seed; the raw seed is revealed only after
// rotation so players can check Commitment(revealed) against what was shown.
func Commitment(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether a revealed server seed matches its
// published digest.
func VerifyCommitment(serverSeed, commitment string) bool {
	return Commitment(serverSeed) == commitment
}
