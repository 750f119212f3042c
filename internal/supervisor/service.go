package supervisor

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/danmuck/wordbiz/internal/client"
	"github.com/rs/zerolog"
)

// ServiceConfig is everything the background client needs to run.
type ServiceConfig struct {
	Client      client.Config
	Credentials client.Credentials
	Supervisor  Config
}

// Runner is a sidecar that lives as long as the service, e.g. the admin
// HTTP server.
type Runner interface {
	Run(ctx context.Context) error
}

// Service owns one session, its supervisor and optional sidecars.
type Service struct {
	cfg     ServiceConfig
	session *client.Session
	sup     *Supervisor
	sidecar []Runner
	logger  zerolog.Logger
}

func NewService(cfg ServiceConfig, logger zerolog.Logger, opts ...client.Option) *Service {
	if cfg.Supervisor.Backoff.InitialDelay <= 0 {
		cfg.Supervisor.Backoff = cfg.Client.Transport.WithDefaults().Backoff
	}
	opts = append([]client.Option{client.WithLogger(logger)}, opts...)
	sess := client.NewSession(cfg.Client, opts...)
	return &Service{
		cfg:     cfg,
		session: sess,
		sup:     New(NewSessionDriver(sess, cfg.Credentials), cfg.Supervisor, logger),
		logger:  logger.With().Str("component", "service").Logger(),
	}
}

func (s *Service) Supervisor() *Supervisor {
	return s.sup
}

// Attach adds a sidecar started by Run.
func (s *Service) Attach(r Runner) {
	s.sidecar = append(s.sidecar, r)
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext runs until ctx is done or a sidecar fails, and returns once the
// supervisor and every sidecar have stopped.
func (s *Service) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info().Str("host", s.cfg.Client.Host).Int("port", s.cfg.Client.Port).
		Str("user", s.cfg.Credentials.Username).Msg("supervisor.Service.Run starting")

	sidecarErr := make(chan error, len(s.sidecar))
	for _, r := range s.sidecar {
		go func(r Runner) {
			sidecarErr <- r.Run(ctx)
		}(r)
	}
	supDone := make(chan error, 1)
	go func() {
		supDone <- s.sup.Run(ctx)
	}()

	var firstErr error
	pending := len(s.sidecar)
	for pending > 0 {
		err := <-sidecarErr
		pending--
		if err != nil && firstErr == nil {
			firstErr = err
			s.logger.Error().Err(err).Msg("supervisor.Service.Run sidecar failed")
			cancel()
		}
	}
	if err := <-supDone; err != nil && firstErr == nil {
		firstErr = err
	}
	s.logger.Info().Msg("supervisor.Service.Run stopped")
	return firstErr
}
