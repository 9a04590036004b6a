package identity

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/straye-as/finance-dashboard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlow_PasswordResetSteps(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	flow := &Flow{ID: "f-1", Kind: FlowKindPasswordReset, State: StateAwaitingRequest}

	require.NoError(t, flow.Requested(now, time.Minute))
	assert.Equal(t, StateAwaitingVerification, flow.State)

	assert.ErrorIs(t, flow.Complete(), ErrInvalidState)

	require.NoError(t, flow.Verified("123456"))
	assert.Equal(t, StateAwaitingCompletion, flow.State)
	assert.Equal(t, "123456", flow.Code)

	require.NoError(t, flow.Complete())
	assert.Equal(t, StateCompleted, flow.State)
	assert.Empty(t, flow.Code)
}

func TestFlow_EmailChangeCompletesOnConfirmation(t *testing.T) {
	flow := &Flow{ID: "f-2", Kind: FlowKindEmailChange, State: StateAwaitingRequest}
	require.NoError(t, flow.Requested(time.Now(), time.Minute))

	assert.ErrorIs(t, flow.Verified("123456"), ErrInvalidState)
	require.NoError(t, flow.Complete())
	assert.Equal(t, StateCompleted, flow.State)
}

func TestFlow_ResendCooldown(t *testing.T) {
	sent := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	flow := &Flow{ID: "f-3", Kind: FlowKindPasswordReset, State: StateAwaitingRequest}
	require.NoError(t, flow.Requested(sent, time.Minute))

	err := flow.CanResend(sent.Add(20*time.Second), time.Minute)
	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 40*time.Second, cooldown.Remaining)
	assert.Equal(t, "a new code can be requested in 40 seconds", err.Error())

	assert.NoError(t, flow.CanResend(sent.Add(time.Minute), time.Minute))
	assert.Zero(t, flow.ResendAvailableIn(sent.Add(2*time.Minute), time.Minute))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "k***@example.com", MaskEmail("kari@example.com"))
	assert.Equal(t, "not-an-email", MaskEmail("not-an-email"))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Save(ctx, &Flow{ID: "f-4", Kind: FlowKindPasswordReset}, time.Minute))

	got, err := store.Get(ctx, "f-4")
	require.NoError(t, err)
	assert.Equal(t, FlowKindPasswordReset, got.Kind)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "f-4")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, &Flow{ID: "f-5"}, time.Minute))
	require.NoError(t, store.Delete(ctx, "f-5"))

	_, err := store.Get(ctx, "f-5")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := testutil.NewFakeRedis()
	fake.SetClock(func() time.Time { return now })
	store := NewRedisStore(fake, "test:")

	flow := &Flow{ID: "f-6", Kind: FlowKindEmailChange, State: StateAwaitingVerification, Email: "new@example.com", UserID: "u-1"}
	require.NoError(t, store.Save(ctx, flow, 15*time.Minute))
	assert.Equal(t, []string{"test:identity-flow:f-6"}, fake.Keys())
	assert.Equal(t, 15*time.Minute, fake.TTL("test:identity-flow:f-6"))

	got, err := store.Get(ctx, "f-6")
	require.NoError(t, err)
	assert.Equal(t, flow.Kind, got.Kind)
	assert.Equal(t, flow.State, got.State)
	assert.Equal(t, flow.Email, got.Email)
	assert.Equal(t, flow.UserID, got.UserID)

	t.Run("expired flow is not found", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &Flow{ID: "f-7"}, time.Minute))
		now = now.Add(time.Minute)
		_, err := store.Get(ctx, "f-7")
		assert.ErrorIs(t, err, ErrFlowNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "f-6"))
		_, err := store.Get(ctx, "f-6")
		assert.ErrorIs(t, err, ErrFlowNotFound)
	})

	t.Run("empty id is refused", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, &Flow{}, time.Minute))
	})

	t.Run("connection errors are not a missing flow", func(t *testing.T) {
		fake.FailWith(errors.New("connection refused"))
		defer fake.FailWith(nil)

		_, err := store.Get(ctx, "f-6")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrFlowNotFound)
		assert.Error(t, store.Save(ctx, flow, time.Minute))
		assert.Error(t, store.Delete(ctx, "f-6"))
	})
}

// Runs against a real server when REDIS_ADDR is set
func TestRedisStore_Server(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "test:")
	flow := &Flow{ID: "f-6", Kind: FlowKindEmailChange, State: StateAwaitingVerification, Email: "new@example.com", UserID: "u-1"}
	require.NoError(t, store.Save(ctx, flow, time.Minute))

	got, err := store.Get(ctx, "f-6")
	require.NoError(t, err)
	assert.Equal(t, flow.Email, got.Email)
	assert.Equal(t, flow.UserID, got.UserID)

	require.NoError(t, store.Delete(ctx, "f-6"))
	_, err = store.Get(ctx, "f-6")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
