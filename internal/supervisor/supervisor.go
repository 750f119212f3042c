package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/danmuck/wordbiz/internal/client"
	"github.com/danmuck/wordbiz/internal/observability"
	"github.com/danmuck/wordbiz/internal/protocol/session"
	"github.com/rs/zerolog"
)

// Phase is the action one iteration took.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnect
	PhaseLogin
	PhaseSteady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnect:
		return "connect"
	case PhaseLogin:
		return "login"
	case PhaseSteady:
		return "steady"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Config tunes the loop. Backoff.InitialDelay is the steady-state interval.
type Config struct {
	Backoff session.BackoffConfig
	// ShutdownTimeout bounds the best-effort logout on stop.
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Backoff:         session.DefaultConfig().Backoff,
		ShutdownTimeout: 2 * time.Second,
	}
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = d.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

// Snapshot is the read-only view published after every iteration.
type Snapshot struct {
	State           client.State `json:"state"`
	Phase           Phase        `json:"phase"`
	Running         bool         `json:"running"`
	Iterations      uint64       `json:"iterations"`
	ConnectFailures uint64       `json:"connect_failures"`
	LoginFailures   uint64       `json:"login_failures"`
	PollErrors      uint64       `json:"poll_errors"`
	LastError       string       `json:"last_error,omitempty"`
	ConnID          string       `json:"conn_id,omitempty"`
	// Since is when State last changed.
	Since time.Time `json:"since"`
}

// Supervisor keeps a Driver authenticated. Step and Run must be called from a
// single goroutine; Snapshot is safe from anywhere.
type Supervisor struct {
	driver Driver
	cfg    Config
	retry  *session.Retry
	logger zerolog.Logger

	cur      Snapshot
	snapshot atomic.Pointer[Snapshot]
}

func New(driver Driver, cfg Config, logger zerolog.Logger) *Supervisor {
	cfg = cfg.WithDefaults()
	s := &Supervisor{
		driver: driver,
		cfg:    cfg,
		retry:  session.NewRetry(cfg.Backoff),
		logger: logger.With().Str("component", "supervisor").Logger(),
	}
	s.cur = Snapshot{State: driver.State(), Since: time.Now()}
	s.publish()
	return s
}

func (s *Supervisor) Snapshot() Snapshot {
	return *s.snapshot.Load()
}

// Step observes the session state and performs exactly one action for it.
func (s *Supervisor) Step(ctx context.Context) Phase {
	state := s.driver.State()
	s.observe(state)

	var phase Phase
	switch {
	case !state.Connected():
		phase = PhaseConnect
		err := s.driver.Connect(ctx)
		s.settle(ctx, phase, err, &s.cur.ConnectFailures)
	case !state.Authenticated():
		phase = PhaseLogin
		err := s.driver.Login(ctx)
		s.settle(ctx, phase, err, &s.cur.LoginFailures)
	default:
		phase = PhaseSteady
		s.steady()
	}

	s.cur.Phase = phase
	s.cur.Iterations++
	s.observe(s.driver.State())
	s.publish()
	observability.RecordIteration(phase.String())
	return phase
}

func (s *Supervisor) settle(ctx context.Context, phase Phase, err error, failures *uint64) {
	if err == nil {
		s.retry.Reset()
		s.cur.LastError = ""
		s.logger.Info().Str("phase", phase.String()).Str("conn_id", s.connID()).
			Msg("supervisor.Supervisor.Step ok")
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	*failures++
	s.retry.Fail()
	s.cur.LastError = err.Error()

	event := s.logger.Warn()
	if client.IsContractViolation(err) {
		event = s.logger.Error()
	}
	event.Err(err).Str("phase", phase.String()).Int("streak", s.retry.Failures()).
		Msg("supervisor.Supervisor.Step failed")
}

func (s *Supervisor) steady() {
	data, err := s.driver.Poll()
	if err != nil {
		s.cur.PollErrors++
		s.cur.LastError = err.Error()
		s.logger.Warn().Err(err).Msg("supervisor.Supervisor.Step session lost")
		return
	}
	s.retry.Reset()
	if len(data) > 0 {
		s.logger.Debug().Int("bytes", len(data)).Str("conn_id", s.connID()).
			Msg("supervisor.Supervisor.Step unsolicited server data")
	}
}

// Run loops Step and a wait until ctx is done, then disconnects.
func (s *Supervisor) Run(ctx context.Context) error {
	s.cur.Running = true
	s.publish()
	s.logger.Info().Dur("interval", s.cfg.Backoff.InitialDelay).Msg("supervisor.Supervisor.Run started")

	for ctx.Err() == nil {
		s.Step(ctx)
		if err := s.wait(ctx); err != nil {
			break
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.driver.Disconnect(stopCtx)

	s.cur.Running = false
	s.observe(s.driver.State())
	s.publish()
	s.logger.Info().Uint64("iterations", s.cur.Iterations).Msg("supervisor.Supervisor.Run stopped")
	return nil
}

func (s *Supervisor) wait(ctx context.Context) error {
	timer := time.NewTimer(s.retry.Delay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Supervisor) observe(state client.State) {
	if state != s.cur.State {
		s.cur.State = state
		s.cur.Since = time.Now()
	}
	s.cur.ConnID = s.connID()
}

func (s *Supervisor) connID() string {
	if id, ok := s.driver.(connIdentifier); ok {
		return id.ConnID()
	}
	return ""
}

func (s *Supervisor) publish() {
	snap := s.cur
	s.snapshot.Store(&snap)
}
