//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-portal/internal/model"
)

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	s := newStack(t)
	user := s.seedUser(t, model.RoleAgent)

	pair, err := s.auth.Login(context.Background(), user.Email, testPassword)
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		reused  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.tokens.Rotate(context.Background(), pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, model.ErrTokenReused):
				reused++
			default:
				assert.ErrorIs(t, err, model.ErrTokenInvalid)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Zero(t, reused, "duplicates inside the grace window are not treated as theft")

	active, err := s.tokens.SessionActive(context.Background(), pair.SessionID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestReuseRevokesEverySessionOfTheUser(t *testing.T) {
	s := newStackWithGrace(t, 0)
	user := s.seedUser(t, model.RoleManager)

	first, err := s.auth.Login(context.Background(), user.Email, testPassword)
	require.NoError(t, err)
	second, err := s.auth.Login(context.Background(), user.Email, testPassword)
	require.NoError(t, err)

	_, err = s.tokens.Rotate(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	_, err = s.tokens.Rotate(context.Background(), first.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenReused)

	active, err := s.tokens.SessionActive(context.Background(), second.SessionID)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = s.tokens.Rotate(context.Background(), second.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenReused)
}
