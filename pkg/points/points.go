// Package points keeps a cached view of a user's point balance and reward
// catalog in sync with the backend.
//
// The balance is owned by the backend and is never computed locally: every
// mutating call is followed by a re-fetch. Refreshes are throttled so that UI
// triggers (scan completion, focus, timers) cannot flood the backend.
package points

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/ecorecycle/pkg/ecoapi"
	"github.com/menta2k/ecorecycle/pkg/types"
)

// DefaultMinInterval is the minimum time between two successful refreshes
const DefaultMinInterval = 8 * time.Second

var (
	ErrOutOfStock         = errors.New("reward out of stock")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrUnknownReward      = errors.New("unknown reward")
	ErrNoUser             = errors.New("no user session")
)

// RejectedError is a redemption refused by the backend for a reason other
// than stock or balance.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "redemption rejected: " + e.Reason
}

// PendingSyncError reports points that could not be delivered to the backend.
// It is a warning: the points are not lost, the next refresh reconciles.
type PendingSyncError struct {
	Points int
	Err    error
}

func (e *PendingSyncError) Error() string {
	return fmt.Sprintf("%d points pending sync: %v", e.Points, e.Err)
}

func (e *PendingSyncError) Unwrap() error {
	return e.Err
}

// Backend is the subset of the backend API the client needs
type Backend interface {
	Balance(ctx context.Context, email string) (int, error)
	LifetimeTotal(ctx context.Context, email string) (int, error)
	AddPoints(ctx context.Context, email string, points int, detail string) error
	Redeem(ctx context.Context, email, reward string) (string, error)
	Rewards(ctx context.Context) ([]types.Reward, error)
	History(ctx context.Context, email string) ([]types.RawHistoryEntry, error)
}

// Availability is the state of a reward for the current balance
type Availability int

const (
	Available Availability = iota
	OutOfStock
	NeedsPoints
)

func (a Availability) String() string {
	switch a {
	case OutOfStock:
		return "Agotado"
	case NeedsPoints:
		return "Faltan pts"
	default:
		return "Canjear"
	}
}

// Client is the points/rewards client of one user session
type Client struct {
	backend     Backend
	email       string
	logger      *zap.Logger
	now         func() time.Time
	minInterval time.Duration

	mu          sync.Mutex
	inFlight    bool
	lastSuccess time.Time
	state       types.PointsState
	rewards     []types.Reward
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithMinInterval overrides DefaultMinInterval
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

// New creates a client for the user identified by email
func New(backend Backend, email string, opts ...Option) *Client {
	c := &Client{
		backend:     backend,
		email:       email,
		logger:      zap.NewNop(),
		now:         time.Now,
		minInterval: DefaultMinInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Email returns the session user
func (c *Client) Email() string {
	return c.email
}

// State returns the cached balance without contacting the backend
func (c *Client) State() types.PointsState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RefreshBalance fetches balance and lifetime total. While a refresh is in
// flight, or within MinInterval of the last successful one, it returns the
// cached state without a request. On failure the cached state is returned
// along with the error.
func (c *Client) RefreshBalance(ctx context.Context) (types.PointsState, error) {
	return c.refresh(ctx, false)
}

// ForceRefresh is RefreshBalance without the interval check. It is still
// single-flight.
func (c *Client) ForceRefresh(ctx context.Context) (types.PointsState, error) {
	return c.refresh(ctx, true)
}

func (c *Client) refresh(ctx context.Context, force bool) (types.PointsState, error) {
	if c.email == "" {
		return c.State(), ErrNoUser
	}

	c.mu.Lock()
	throttled := !force && !c.lastSuccess.IsZero() && c.now().Sub(c.lastSuccess) < c.minInterval
	if c.inFlight || throttled {
		state := c.state
		c.mu.Unlock()
		return state, nil
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	var balance, total int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = c.backend.Balance(gctx, c.email)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = c.backend.LifetimeTotal(gctx, c.email)
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("points refresh failed", zap.String("user", c.email), zap.Error(err))
		return c.State(), fmt.Errorf("refresh points: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.state = types.PointsState{Balance: balance, LifetimeTotal: total, FetchedAt: now}
	c.lastSuccess = now
	c.logger.Debug("points refreshed", zap.Int("balance", balance), zap.Int("lifetime", total))
	return c.state, nil
}

// AwardBonus credits points on the backend. A delivery failure is returned as
// a *PendingSyncError and leaves the cached balance untouched.
func (c *Client) AwardBonus(ctx context.Context, points int, detail string) error {
	if points <= 0 {
		return nil
	}
	if c.email == "" {
		return ErrNoUser
	}
	if err := c.backend.AddPoints(ctx, c.email, points, detail); err != nil {
		c.logger.Warn("points pending sync", zap.Int("points", points), zap.Error(err))
		return &PendingSyncError{Points: points, Err: err}
	}
	if _, err := c.ForceRefresh(ctx); err != nil {
		c.logger.Warn("refresh after award failed", zap.Error(err))
	}
	return nil
}

// LoadRewards reloads the catalog. The authoritative list replaces any local
// stock adjustment. On failure the cached catalog is returned with the error.
func (c *Client) LoadRewards(ctx context.Context) ([]types.Reward, error) {
	rewards, err := c.backend.Rewards(ctx)
	if err != nil {
		c.logger.Warn("rewards load failed", zap.Error(err))
		return c.Rewards(), fmt.Errorf("load rewards: %w", err)
	}
	c.mu.Lock()
	c.rewards = make([]types.Reward, len(rewards))
	copy(c.rewards, rewards)
	for i := range c.rewards {
		c.rewards[i].Stale = false
	}
	c.mu.Unlock()
	return c.Rewards(), nil
}

// Rewards returns the cached catalog
func (c *Client) Rewards() []types.Reward {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Reward, len(c.rewards))
	copy(out, c.rewards)
	return out
}

// Availability reports whether a reward can be redeemed with the cached balance
func (c *Client) Availability(r types.Reward) Availability {
	if r.Stock <= 0 {
		return OutOfStock
	}
	if c.State().Balance < r.RequiredPoints {
		return NeedsPoints
	}
	return Available
}

// Redeem spends points on a cached reward. Stock and balance are checked
// locally first and again by the backend. On success the cached stock drops by
// one until the next LoadRewards and the balance is re-fetched.
func (c *Client) Redeem(ctx context.Context, rewardID int) (types.RedemptionReceipt, error) {
	if c.email == "" {
		return types.RedemptionReceipt{}, ErrNoUser
	}
	reward, ok := c.findReward(rewardID)
	if !ok {
		return types.RedemptionReceipt{}, ErrUnknownReward
	}
	switch c.Availability(reward) {
	case OutOfStock:
		return types.RedemptionReceipt{}, ErrOutOfStock
	case NeedsPoints:
		return types.RedemptionReceipt{}, ErrInsufficientPoints
	}

	msg, err := c.backend.Redeem(ctx, c.email, reward.Name)
	if err != nil {
		var apiErr *ecoapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			return types.RedemptionReceipt{}, classifyRejection(apiErr.Message)
		}
		return types.RedemptionReceipt{}, fmt.Errorf("redeem %q: %w", reward.Name, err)
	}

	c.mu.Lock()
	for i := range c.rewards {
		if c.rewards[i].ID == rewardID {
			c.rewards[i].Stock = max(0, c.rewards[i].Stock-1)
			c.rewards[i].Stale = true
			break
		}
	}
	c.mu.Unlock()

	if _, err := c.ForceRefresh(ctx); err != nil {
		c.logger.Warn("refresh after redeem failed", zap.Error(err))
	}

	if msg == "" {
		msg = fmt.Sprintf("¡Canjeaste %s!", reward.Name)
	}
	return types.RedemptionReceipt{
		RewardID:   reward.ID,
		RewardName: reward.Name,
		Message:    msg,
		RedeemedAt: c.now(),
	}, nil
}

func (c *Client) findReward(id int) (types.Reward, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rewards {
		if r.ID == id {
			return r, true
		}
	}
	return types.Reward{}, false
}

func classifyRejection(reason string) error {
	low := strings.ToLower(reason)
	switch {
	case strings.Contains(low, "stock") || strings.Contains(low, "agotad"):
		return fmt.Errorf("%w: %s", ErrOutOfStock, reason)
	case strings.Contains(low, "punto") || strings.Contains(low, "pts") ||
		strings.Contains(low, "saldo") || strings.Contains(low, "point"):
		return fmt.Errorf("%w: %s", ErrInsufficientPoints, reason)
	default:
		return &RejectedError{Reason: reason}
	}
}

// co2PerItemKg is the CO₂ credited for each recycled item
const co2PerItemKg = 0.35

// ComputeStatistics summarises scanned item points and the lifetime total
func ComputeStatistics(scanPoints []int, lifetimeTotal int) types.Statistics {
	stats := types.Statistics{
		TotalRecycled:  len(scanPoints),
		LifetimePoints: lifetimeTotal,
	}
	if len(scanPoints) == 0 {
		return stats
	}
	sum := 0
	for _, p := range scanPoints {
		sum += p
	}
	stats.CO2AvoidedKg = math.Round(float64(len(scanPoints))*co2PerItemKg*10) / 10
	stats.AveragePoints = int(math.Round(float64(sum) / float64(len(scanPoints))))
	return stats
}
