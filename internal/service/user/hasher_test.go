package user

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func Test_BcryptHasher(t *testing.T) {
	t.Parallel()

	h := BcryptHasher{Cost: bcrypt.MinCost}

	t.Run("hash password", func(t *testing.T) {
		got, err := h.Hash(t.Context(), "password")
		require.NoError(t, err)

		require.Len(t, got, 60, "bcrypt length is 60 letters as far as i know")
		require.Equal(t, "$2a$", got[:4], "bcrypt has should have prefix '$2a$'")
	})

	t.Run("compare password ok", func(t *testing.T) {
		hash, err := h.Hash(t.Context(), "password")
		require.NoError(t, err)

		err = h.Compare(t.Context(), hash, "password")

		require.NoError(t, err)
	})

	t.Run("fail compare if wrong password", func(t *testing.T) {
		hash, err := h.Hash(t.Context(), "password")
		require.NoError(t, err)

		err = h.Compare(t.Context(), hash, "wrong")

		require.ErrorIs(t, err, bcrypt.ErrMismatchedHashAndPassword)
	})

	t.Run("long passwords differ after 72 bytes", func(t *testing.T) {
		prefix := string(make([]byte, 80))
		hash, err := h.Hash(t.Context(), prefix+"a")
		require.NoError(t, err)

		err = h.Compare(t.Context(), hash, prefix+"b")

		require.Error(t, err, "tail of long password must matter")
	})
}

// Hasher that counts how many hashes run at once
type slowHasher struct {
	running atomic.Int32
	maxSeen atomic.Int32
}

func (h *slowHasher) Hash(_ context.Context, password string) (string, error) {
	n := h.running.Add(1)
	defer h.running.Add(-1)

	for {
		seen := h.maxSeen.Load()
		if n <= seen || h.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)

	return password, nil
}

func (h *slowHasher) Compare(ctx context.Context, hashedPassword string, password string) error {
	_, err := h.Hash(ctx, password)
	return err
}

func Test_PooledHasher(t *testing.T) {
	t.Parallel()

	t.Run("bound concurrent hashes", func(t *testing.T) {
		inner := &slowHasher{}
		h := NewPooledHasher(inner, 2)

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Hash(context.Background(), "pwd")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		require.LessOrEqual(t, inner.maxSeen.Load(), int32(2), "no more than pool size hashes at once")
	})

	t.Run("honour context", func(t *testing.T) {
		inner := &slowHasher{}
		h := NewPooledHasher(inner, 1)

		// Occupy the only slot
		require.NoError(t, h.sem.Acquire(t.Context(), 1))
		defer h.sem.Release(1)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := h.Hash(ctx, "pwd")
		require.ErrorIs(t, err, context.Canceled)

		err = h.Compare(ctx, "pwd", "pwd")
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("default size", func(t *testing.T) {
		h := NewPooledHasher(BcryptHasher{Cost: bcrypt.MinCost}, 0)

		hash, err := h.Hash(t.Context(), "password")
		require.NoError(t, err)
		require.NoError(t, h.Compare(t.Context(), hash, "password"))
	})
}
