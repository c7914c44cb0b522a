package user

import (
	"context"
	"crypto/sha256"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(ctx context.Context, password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(ctx context.Context, hashedPassword string, password string) error
}

// Bcrypt password hasher
// Password is prehashed with sha256, so bcrypt's 72 bytes limit is not an issue
type BcryptHasher struct {
	// bcrypt.DefaultCost if zero
	Cost int
}

func (h BcryptHasher) Hash(_ context.Context, password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

func (h BcryptHasher) Compare(_ context.Context, hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])
}

// PooledHasher bounds the number of hashes computed at the same time
// Hashing is CPU bound, so unbounded signup or login bursts would starve the rest of the server
type PooledHasher struct {
	hasher PasswordHasher
	sem    *semaphore.Weighted
}

// Wrap hasher into pool of given size. If size <= 0 runtime.NumCPU() is used
func NewPooledHasher(hasher PasswordHasher, size int) *PooledHasher {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	return &PooledHasher{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(size)),
	}
}

func (h *PooledHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("hasher pool error: %w", err)
	}
	defer h.sem.Release(1)

	return h.hasher.Hash(ctx, password)
}

func (h *PooledHasher) Compare(ctx context.Context, hashedPassword string, password string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("hasher pool error: %w", err)
	}
	defer h.sem.Release(1)

	return h.hasher.Compare(ctx, hashedPassword, password)
}

// Bcrypt hasher with default cost, bounded by number of CPUs
var DefaultHasher PasswordHasher = NewPooledHasher(BcryptHasher{}, 0)
