// Package seeds is the per-user seed registry. Each user holds one active
// seed pair at a time; the hash of the server seed is public from the moment
// the pair is created, the raw server seed only after the pair is rotated out.
package seeds

import (
	"context"
	"errors"
	"fmt"

	"fairbet/internal/rng"
)

// Pair is one commit/reveal unit. Nonce counts how many outcomes have been
// drawn from it; it strictly increases and resets to zero on rotation.
type Pair struct {
	ServerSeed     string `json:"-"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

// ErrSeedIntegrity flags a stored pair whose server seed no longer matches
// its published hash. Issuance from such a pair must stop; this is tampering
// or a bug, not a user error.
var ErrSeedIntegrity = errors.New("seeds: server seed does not match commitment")

type Registry interface {
	// Current returns the active pair without consuming a nonce, creating
	// one on first use.
	Current(ctx context.Context, userID string) (Pair, error)
	// Issue atomically reserves the next nonce of the active pair and
	// returns the pair snapshot to derive an outcome from.
	Issue(ctx context.Context, userID string) (Pair, error)
	// Rotate reveals the active pair and replaces it with a fresh one.
	Rotate(ctx context.Context, userID string) (revealed, next Pair, err error)
	// SetClientSeed lets the player influence future outcomes. Takes effect
	// on the active pair; past nonces keep their original client seed only
	// in history records.
	SetClientSeed(ctx context.Context, userID, clientSeed string) error
}

func newPair() Pair {
	seed := rng.NewServerSeed()
	return Pair{
		ServerSeed:     seed,
		ServerSeedHash: rng.Commitment(seed),
		ClientSeed:     rng.NewServerSeed()[:16],
	}
}

func checkIntegrity(p Pair) error {
	if !rng.VerifyCommitment(p.ServerSeed, p.ServerSeedHash) {
		return fmt.Errorf("%w (hash %s)", ErrSeedIntegrity, p.ServerSeedHash)
	}
	return nil
}
