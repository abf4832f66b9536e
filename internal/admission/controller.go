package admission

import (
	"context"
	"time"

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/security"
)

// Endpoint keys with configured limits.
const (
	EndpointCreateJob = "portraits.create"
)

// Limit is one endpoint's sliding-window configuration.
type Limit struct {
	MaxRequests   int
	WindowMinutes int
}

// Config tunes the admission controller. Zero values fall back to defaults.
type Config struct {
	Limits       map[string]Limit
	DefaultLimit Limit

	// PrivilegedMultiplier scales MaxRequests for callers that already paid.
	PrivilegedMultiplier int

	// EscalationFactor converts repeated violations into a temporary block:
	// a window sum at or above factor*limit blocks the source.
	EscalationFactor     int
	BlockDurationMinutes int

	// Concurrency ceilings over jobs created within ActiveWindow.
	GlobalActiveLimit int
	UserActiveLimit   int
	ActiveWindow      time.Duration

	// BypassAll disables every check. Local/dev only; this is the single
	// switch, nothing else in the package consults the environment.
	BypassAll bool
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit.MaxRequests == 0 {
		c.DefaultLimit = Limit{MaxRequests: 30, WindowMinutes: 10}
	}
	if c.Limits == nil {
		c.Limits = map[string]Limit{
			EndpointCreateJob: {MaxRequests: 10, WindowMinutes: 10},
		}
	}
	if c.PrivilegedMultiplier == 0 {
		c.PrivilegedMultiplier = 10
	}
	if c.EscalationFactor == 0 {
		c.EscalationFactor = 2
	}
	if c.BlockDurationMinutes == 0 {
		c.BlockDurationMinutes = 60
	}
	if c.GlobalActiveLimit == 0 {
		c.GlobalActiveLimit = 10
	}
	if c.UserActiveLimit == 0 {
		c.UserActiveLimit = 1
	}
	if c.ActiveWindow == 0 {
		c.ActiveWindow = 10 * time.Minute
	}
	return c
}

// Controller decides whether a new job may be created. Counters and active
// job counts live in the shared store, so decisions stay correct across
// multiple service instances.
type Controller struct {
	cfg       Config
	rates     domain.RateLimitRepository
	jobs      domain.JobRepository
	blocklist domain.Blocklist
	secLog    domain.SecurityLog
	logger    infra.Logger
	now       func() time.Time
}

// NewController wires an admission controller.
func NewController(cfg Config, rates domain.RateLimitRepository, jobs domain.JobRepository, blocklist domain.Blocklist, secLog domain.SecurityLog, logger infra.Logger) *Controller {
	return &Controller{
		cfg:       cfg.withDefaults(),
		rates:     rates,
		jobs:      jobs,
		blocklist: blocklist,
		secLog:    secLog,
		logger:    logger,
		now:       time.Now,
	}
}

// Authorize runs the sliding-window rate limit check for one request from
// sourceIdentity against endpoint. Counter store failures deny (fail closed).
func (c *Controller) Authorize(ctx context.Context, sourceIdentity, endpoint string, privileged bool) domain.AdmissionDecision {
	if c.cfg.BypassAll {
		return domain.Allow(0, time.Time{})
	}

	identityHash := security.HashIdentity(sourceIdentity)

	blocked, err := c.blocklist.IsBlocked(ctx, identityHash)
	if err != nil {
		c.logger.Error().Err(err).Msg("admission: blocklist unavailable")
		return domain.Deny(domain.DenyReasonUnavailable, time.Minute)
	}
	if blocked {
		return domain.Deny(domain.DenyReasonBlocked, time.Duration(c.cfg.BlockDurationMinutes)*time.Minute)
	}

	limit := c.limitFor(endpoint)
	maxRequests := limit.MaxRequests
	if privileged {
		maxRequests *= c.cfg.PrivilegedMultiplier
	}
	window := time.Duration(limit.WindowMinutes) * time.Minute

	now := c.now()
	windowStart := now.Truncate(time.Minute)

	// Every attempt counts, admitted or not, so sustained hammering past the
	// limit is visible to the escalation threshold below.
	if err := c.rates.Increment(ctx, identityHash, endpoint, windowStart); err != nil {
		c.logger.Error().Err(err).Msg("admission: counter store unavailable, failing closed")
		return domain.Deny(domain.DenyReasonUnavailable, time.Minute)
	}
	sum, err := c.rates.WindowSum(ctx, identityHash, endpoint, now.Add(-window))
	if err != nil {
		c.logger.Error().Err(err).Msg("admission: counter store unavailable, failing closed")
		return domain.Deny(domain.DenyReasonUnavailable, time.Minute)
	}

	resetAt := windowStart.Add(window)
	if sum > maxRequests {
		if sum >= c.cfg.EscalationFactor*maxRequests {
			c.escalate(ctx, sourceIdentity, identityHash, endpoint, sum, maxRequests)
		}
		return domain.Deny(domain.DenyReasonRateLimited, resetAt.Sub(now))
	}
	return domain.Allow(maxRequests-sum, resetAt)
}

// AuthorizeJob combines the rate-limit check with the global and per-user
// concurrency ceilings for job creation.
func (c *Controller) AuthorizeJob(ctx context.Context, sourceIdentity, userID string, privileged bool) domain.AdmissionDecision {
	if c.cfg.BypassAll {
		return domain.Allow(0, time.Time{})
	}

	decision := c.Authorize(ctx, sourceIdentity, EndpointCreateJob, privileged)
	if !decision.Allowed {
		return decision
	}

	now := c.now()
	cutoff := now.Add(-c.cfg.ActiveWindow)

	// Jobs stuck in a non-terminal state past the trailing window would hold
	// a concurrency slot forever; fail them before counting.
	if swept, err := c.jobs.SweepStale(ctx, cutoff, domain.MsgGenerationTimeout); err != nil {
		c.logger.Error().Err(err).Msg("admission: stale job sweep failed")
	} else if swept > 0 {
		c.logger.Warn().Int64("swept", swept).Msg("admission: swept stale jobs")
	}

	globalActive, err := c.jobs.CountActive(ctx, cutoff)
	if err != nil {
		c.logger.Error().Err(err).Msg("admission: active job count unavailable, failing closed")
		return domain.Deny(domain.DenyReasonUnavailable, time.Minute)
	}
	if globalActive >= c.cfg.GlobalActiveLimit {
		return domain.Deny(domain.DenyReasonBusy, time.Minute)
	}

	userActive, err := c.jobs.CountActiveForUser(ctx, userID, cutoff)
	if err != nil {
		c.logger.Error().Err(err).Msg("admission: user job count unavailable, failing closed")
		return domain.Deny(domain.DenyReasonUnavailable, time.Minute)
	}
	if userActive >= c.cfg.UserActiveLimit {
		return domain.Deny(domain.DenyReasonBusy, time.Minute)
	}

	return decision
}

func (c *Controller) limitFor(endpoint string) Limit {
	if limit, ok := c.cfg.Limits[endpoint]; ok {
		return limit
	}
	return c.cfg.DefaultLimit
}

// escalate converts a sustained violation into a temporary block. Once the
// block lands, subsequent requests are rejected at the blocklist check before
// reaching this path, so one burst produces one block and one audit event.
func (c *Controller) escalate(ctx context.Context, sourceIdentity, identityHash, endpoint string, sum, limit int) {
	duration := time.Duration(c.cfg.BlockDurationMinutes) * time.Minute
	if err := c.blocklist.Block(ctx, identityHash, "rate limit escalation", duration); err != nil {
		c.logger.Error().Err(err).Msg("admission: block escalation failed")
		return
	}
	c.secLog.Log("rate_limit_escalation", identityHash, map[string]any{
		"endpoint": endpoint,
		"sum":      sum,
		"limit":    limit,
		"ip":       sourceIdentity,
	})
}
