package points

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/menta2k/ecorecycle/pkg/ecoapi"
	"github.com/menta2k/ecorecycle/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	mu       sync.Mutex
	balance  int
	lifetime int
	rewards  []types.Reward
	history  []types.RawHistoryEntry

	balanceCalls atomic.Int32
	addCalls     atomic.Int32
	redeemCalls  atomic.Int32

	// gate, when set, blocks Balance until closed
	gate        chan struct{}
	balanceErr  error
	addErr      error
	redeemErr   error
	rewardsErr  error
	lastAdded   int
	lastPremium string
}

func (f *fakeBackend) Balance(ctx context.Context, email string) (int, error) {
	f.balanceCalls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeBackend) LifetimeTotal(ctx context.Context, email string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lifetime, nil
}

func (f *fakeBackend) AddPoints(ctx context.Context, email string, points int, detail string) error {
	f.addCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.lastAdded = points
	f.balance += points
	f.lifetime += points
	return nil
}

func (f *fakeBackend) Redeem(ctx context.Context, email, reward string) (string, error) {
	f.redeemCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redeemErr != nil {
		return "", f.redeemErr
	}
	f.lastPremium = reward
	for _, r := range f.rewards {
		if r.Name == reward {
			f.balance -= r.RequiredPoints
		}
	}
	return "Canje exitoso", nil
}

func (f *fakeBackend) Rewards(ctx context.Context) ([]types.Reward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rewardsErr != nil {
		return nil, f.rewardsErr
	}
	out := make([]types.Reward, len(f.rewards))
	copy(out, f.rewards)
	return out, nil
}

func (f *fakeBackend) History(ctx context.Context, email string) ([]types.RawHistoryEntry, error) {
	return f.history, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClient(b *fakeBackend) (*Client, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	return New(b, "ana@example.com", WithClock(clock.Now)), clock
}

func TestRefreshThrottle(t *testing.T) {
	b := &fakeBackend{balance: 10, lifetime: 50}
	c, clock := newClient(b)
	ctx := context.Background()

	st, err := c.RefreshBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Balance)
	assert.Equal(t, 50, st.LifetimeTotal)

	b.mu.Lock()
	b.balance = 99
	b.mu.Unlock()

	clock.Advance(5 * time.Second)
	st, err = c.RefreshBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Balance, "throttled call must return the cached value")
	assert.EqualValues(t, 1, b.balanceCalls.Load())

	clock.Advance(3 * time.Second)
	st, err = c.RefreshBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 99, st.Balance)
	assert.EqualValues(t, 2, b.balanceCalls.Load())
}

func TestRefreshSingleFlight(t *testing.T) {
	b := &fakeBackend{balance: 7, gate: make(chan struct{})}
	c, _ := newClient(b)
	ctx := context.Background()

	done := make(chan types.PointsState)
	go func() {
		st, _ := c.RefreshBalance(ctx)
		done <- st
	}()

	require.Eventually(t, func() bool { return b.balanceCalls.Load() == 1 }, time.Second, time.Millisecond)

	// second call while the first is in flight is a no-op
	st, err := c.ForceRefresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Balance)

	close(b.gate)
	assert.Equal(t, 7, (<-done).Balance)
	assert.EqualValues(t, 1, b.balanceCalls.Load())
}

func TestRefreshFailureClearsInFlight(t *testing.T) {
	b := &fakeBackend{balanceErr: errors.New("connection refused")}
	c, _ := newClient(b)
	ctx := context.Background()

	_, err := c.RefreshBalance(ctx)
	require.Error(t, err)

	// a failed refresh neither sticks the flag nor starts the interval
	b.mu.Lock()
	b.balanceErr = nil
	b.balance = 3
	b.mu.Unlock()

	st, err := c.RefreshBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Balance)
	assert.EqualValues(t, 2, b.balanceCalls.Load())
}

func TestRefreshNoUser(t *testing.T) {
	c := New(&fakeBackend{}, "")
	_, err := c.RefreshBalance(context.Background())
	assert.ErrorIs(t, err, ErrNoUser)
}

func loaded(t *testing.T, b *fakeBackend) (*Client, *fakeClock) {
	t.Helper()
	c, clock := newClient(b)
	_, err := c.RefreshBalance(context.Background())
	require.NoError(t, err)
	_, err = c.LoadRewards(context.Background())
	require.NoError(t, err)
	return c, clock
}

func TestRedeemInsufficientPoints(t *testing.T) {
	b := &fakeBackend{
		balance: 10, lifetime: 50,
		rewards: []types.Reward{{ID: 1, Name: "Bono café", RequiredPoints: 15, Stock: 2}},
	}
	c, _ := loaded(t, b)

	_, err := c.Redeem(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, 10, c.State().Balance)
	assert.Equal(t, 50, c.State().LifetimeTotal)
	assert.Zero(t, b.redeemCalls.Load())
	assert.Equal(t, 2, c.Rewards()[0].Stock)
}

func TestRedeemOutOfStockAndUnknown(t *testing.T) {
	b := &fakeBackend{
		balance: 100,
		rewards: []types.Reward{{ID: 1, Name: "Gorra", RequiredPoints: 5, Stock: 0}},
	}
	c, _ := loaded(t, b)

	_, err := c.Redeem(context.Background(), 1)
	assert.ErrorIs(t, err, ErrOutOfStock)

	_, err = c.Redeem(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUnknownReward)
}

func TestRedeemSuccess(t *testing.T) {
	b := &fakeBackend{
		balance: 200, lifetime: 300,
		rewards: []types.Reward{{ID: 1, Name: "Entrada cine", RequiredPoints: 150, Stock: 3}},
	}
	c, _ := loaded(t, b)

	receipt, err := c.Redeem(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Entrada cine", receipt.RewardName)
	assert.Equal(t, "Canje exitoso", receipt.Message)

	// balance comes from the backend, lifetime does not drop
	assert.Equal(t, 50, c.State().Balance)
	assert.Equal(t, 300, c.State().LifetimeTotal)

	r := c.Rewards()[0]
	assert.Equal(t, 2, r.Stock)
	assert.True(t, r.Stale)

	// reload overwrites the optimistic stock
	_, err = c.LoadRewards(context.Background())
	require.NoError(t, err)
	r = c.Rewards()[0]
	assert.Equal(t, 3, r.Stock)
	assert.False(t, r.Stale)
}

func TestRedeemBackendRejections(t *testing.T) {
	cases := []struct {
		msg  string
		want error
	}{
		{"Sin stock disponible", ErrOutOfStock},
		{"Puntos insuficientes", ErrInsufficientPoints},
	}
	for _, tc := range cases {
		b := &fakeBackend{
			balance:   100,
			rewards:   []types.Reward{{ID: 1, Name: "Gorra", RequiredPoints: 5, Stock: 1}},
			redeemErr: &ecoapi.APIError{StatusCode: http.StatusOK, Message: tc.msg},
		}
		c, _ := loaded(t, b)
		_, err := c.Redeem(context.Background(), 1)
		assert.ErrorIs(t, err, tc.want, tc.msg)
		assert.Equal(t, 1, c.Rewards()[0].Stock, "no stock mutation on rejection")
	}

	b := &fakeBackend{
		balance:   100,
		rewards:   []types.Reward{{ID: 1, Name: "Gorra", RequiredPoints: 5, Stock: 1}},
		redeemErr: &ecoapi.APIError{StatusCode: http.StatusBadRequest, Message: "usuario bloqueado"},
	}
	c, _ := loaded(t, b)
	_, err := c.Redeem(context.Background(), 1)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "usuario bloqueado", rejected.Reason)
}

func TestAwardBonus(t *testing.T) {
	b := &fakeBackend{balance: 10, lifetime: 10}
	c, _ := loaded(t, b)

	require.NoError(t, c.AwardBonus(context.Background(), 6, "Bono quiz"))
	assert.Equal(t, 6, b.lastAdded)
	assert.Equal(t, 16, c.State().Balance)

	require.NoError(t, c.AwardBonus(context.Background(), 0, "nada"))
	assert.EqualValues(t, 1, b.addCalls.Load())
}

func TestAwardBonusPendingSync(t *testing.T) {
	netErr := errors.New("network unreachable")
	b := &fakeBackend{balance: 10, addErr: netErr}
	c, _ := loaded(t, b)

	err := c.AwardBonus(context.Background(), 4, "Bono quiz")
	var pending *PendingSyncError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, 4, pending.Points)
	assert.ErrorIs(t, err, netErr)
	assert.Equal(t, 10, c.State().Balance)
}

func TestLoadRewardsFailureKeepsCache(t *testing.T) {
	b := &fakeBackend{rewards: []types.Reward{{ID: 1, Name: "Gorra", RequiredPoints: 5, Stock: 1}}}
	c, _ := loaded(t, b)

	b.mu.Lock()
	b.rewardsErr = errors.New("timeout")
	b.mu.Unlock()

	got, err := c.LoadRewards(context.Background())
	assert.Error(t, err)
	assert.Len(t, got, 1)
}

func TestAvailability(t *testing.T) {
	b := &fakeBackend{balance: 10}
	c, _ := loaded(t, b)

	assert.Equal(t, Available, c.Availability(types.Reward{RequiredPoints: 10, Stock: 1}))
	assert.Equal(t, NeedsPoints, c.Availability(types.Reward{RequiredPoints: 11, Stock: 1}))
	assert.Equal(t, OutOfStock, c.Availability(types.Reward{RequiredPoints: 1, Stock: 0}))
	assert.Equal(t, "Agotado", OutOfStock.String())
}

func TestComputeStatistics(t *testing.T) {
	assert.Equal(t, types.Statistics{LifetimePoints: 9}, ComputeStatistics(nil, 9))

	s := ComputeStatistics([]int{5, 4, 0, 3}, 40)
	assert.Equal(t, 4, s.TotalRecycled)
	assert.Equal(t, 40, s.LifetimePoints)
	assert.InDelta(t, 1.4, s.CO2AvoidedKg, 1e-9)
	assert.Equal(t, 3, s.AveragePoints)
}
