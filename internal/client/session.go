package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/wordbiz/internal/observability"
	"github.com/danmuck/wordbiz/internal/protocol/frame"
	"github.com/danmuck/wordbiz/internal/protocol/session"
	"github.com/rs/zerolog"
)

const DefaultClientVersion = "1871"

// Credentials are the lobby account used by LOGIN.
type Credentials struct {
	Username string
	Password string
}

// Validate requires both fields to be single non-empty tokens, since LOGIN is
// space-delimited.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: missing username", ErrInvalidCredentials)
	}
	if strings.TrimSpace(c.Password) == "" {
		return fmt.Errorf("%w: missing password", ErrInvalidCredentials)
	}
	if strings.ContainsAny(c.Username, " \t\r\n") {
		return fmt.Errorf("%w: username contains whitespace", ErrInvalidCredentials)
	}
	if strings.ContainsAny(c.Password, " \t\r\n") {
		return fmt.Errorf("%w: password contains whitespace", ErrInvalidCredentials)
	}
	return nil
}

// Config is what a Session needs to reach and speak to the lobby.
type Config struct {
	Host          string
	Port          int
	ClientVersion string
	// IncrementSequence numbers requests 0,1,2,... instead of always 0.
	IncrementSequence bool
	Transport         session.Config
}

// TransitionHook observes every state change.
type TransitionHook func(from, to State)

type Option func(*Session)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithReplyParser(p ReplyParser) Option {
	return func(s *Session) {
		if p != nil {
			s.parser = p
		}
	}
}

func WithTransitionHook(h TransitionHook) Option {
	return func(s *Session) {
		s.hooks = append(s.hooks, h)
	}
}

// Session is the Disconnected -> Connected -> Authenticated state machine on
// top of a Connection. It has no locks: exactly one goroutine may drive it.
type Session struct {
	cfg    Config
	conn   *Connection
	parser ReplyParser
	logger zerolog.Logger
	hooks  []TransitionHook

	authenticated bool
	seq           uint32
	last          State
}

func NewSession(cfg Config, opts ...Option) *Session {
	cfg.Transport = cfg.Transport.WithDefaults()
	if strings.TrimSpace(cfg.ClientVersion) == "" {
		cfg.ClientVersion = DefaultClientVersion
	}
	s := &Session{
		cfg:    cfg,
		parser: RawReplyParser{},
		logger: zerolog.Nop(),
		last:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "session").Logger()
	s.conn = NewConnection(cfg.Transport, s.logger)
	return s
}

// State derives the session state from the connection plus the auth flag.
func (s *Session) State() State {
	s.sync()
	return s.last
}

// ConnID is the id of the open socket, or empty.
func (s *Session) ConnID() string {
	return s.conn.ID()
}

// Connect opens the socket. It fails fast with ErrAlreadyConnected when a
// socket is already open.
func (s *Session) Connect(ctx context.Context) error {
	err := s.conn.Connect(ctx, s.cfg.Host, s.cfg.Port)
	if !errors.Is(err, ErrAlreadyConnected) {
		observability.RecordConnectAttempt(err)
	}
	s.sync()
	return err
}

// Login sends LOGIN and requires an accepted reply. Valid only from Connected.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	switch s.State() {
	case StateAuthenticated:
		return ErrAlreadyAuthenticated
	case StateDisconnected:
		return ErrNotConnected
	}
	if err := creds.Validate(); err != nil {
		observability.RecordLoginAttempt(err)
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	command := fmt.Sprintf("LOGIN %s %s %s", creds.Username, creds.Password, s.cfg.ClientVersion)
	masked := fmt.Sprintf("LOGIN %s *** %s", creds.Username, s.cfg.ClientVersion)
	reply, err := s.request(ctx, command, masked)
	observability.RecordLoginAttempt(err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	s.authenticated = true
	s.logger.Info().Str("user", creds.Username).Str("reply", reply.String()).Msg("client.Session.Login accepted")
	s.sync()
	return nil
}

// Logout sends LOGOUT. The local auth flag is cleared before the request goes
// out, so a lost acknowledgment still leaves the session logged out.
func (s *Session) Logout(ctx context.Context) error {
	if s.State() != StateAuthenticated {
		return ErrNotAuthenticated
	}
	s.authenticated = false
	s.sync()

	reply, err := s.request(ctx, "LOGOUT", "LOGOUT")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLogoutFailed, err)
	}
	s.logger.Info().Str("reply", reply.String()).Msg("client.Session.Logout acknowledged")
	return nil
}

// Disconnect logs out best-effort when authenticated and closes the socket.
// It always ends Disconnected and is safe to repeat.
func (s *Session) Disconnect(ctx context.Context) {
	if s.State() == StateAuthenticated {
		if err := s.Logout(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("client.Session.Disconnect logout ignored")
		}
	}
	s.conn.Disconnect()
	s.authenticated = false
	s.sync()
}

// SendValidatedCommand is the entry point for lobby commands beyond
// login/logout (seek, unseek, history, finger). It requires Authenticated.
func (s *Session) SendValidatedCommand(ctx context.Context, command string) (Reply, error) {
	if s.State() != StateAuthenticated {
		return Reply{}, ErrNotAuthenticated
	}
	return s.request(ctx, command, command)
}

// Poll drains whatever the server pushed without waiting longer than the poll
// timeout. No data returns nil, nil. A dead socket tears the session down and
// returns the *IOError.
func (s *Session) Poll() ([]byte, error) {
	if s.State() == StateDisconnected {
		return nil, ErrNotConnected
	}
	data, err := s.conn.Receive(s.cfg.Transport.MaxReplyBytes)
	if errors.Is(err, ErrReceiveTimeout) {
		return nil, nil
	}
	s.sync()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Session) request(ctx context.Context, command, logText string) (Reply, error) {
	req := frame.Request{Sequence: s.nextSeq(), Command: command, Validate: true}
	b, err := frame.Encode(req)
	if err != nil {
		return Reply{}, err
	}

	s.logger.Debug().Uint32("seq", req.Sequence).Str("command", logText).Int("bytes", len(b)).
		Msg("client.Session.request >>>")
	if err := s.conn.Send(b); err != nil {
		s.sync()
		return Reply{}, err
	}
	observability.RecordFrameSent(req.Verb())

	raw, err := s.conn.ReceiveWithin(ctx, s.cfg.Transport.MaxReplyBytes, s.cfg.Transport.ReplyTimeout)
	if err != nil {
		s.sync()
		return Reply{}, err
	}
	s.logger.Debug().Uint32("seq", req.Sequence).Int("bytes", len(raw)).Msg("client.Session.request <<<")
	return s.parser.ParseReply(req.Verb(), raw)
}

func (s *Session) nextSeq() uint32 {
	if !s.cfg.IncrementSequence {
		return 0
	}
	seq := s.seq
	s.seq++
	return seq
}

// sync reconciles the auth flag with the socket and reports transitions.
func (s *Session) sync() {
	if s.conn.State() == ConnDisconnected {
		s.authenticated = false
	}
	next := StateDisconnected
	if s.conn.State() == ConnConnected {
		next = StateConnected
		if s.authenticated {
			next = StateAuthenticated
		}
	}
	if next == s.last {
		return
	}
	prev := s.last
	s.last = next
	if next == StateDisconnected {
		s.seq = 0
	}
	s.logger.Info().Str("from", prev.String()).Str("to", next.String()).Msg("client.Session transition")
	observability.RecordTransition(prev.String(), next.String(), int(next))
	for _, h := range s.hooks {
		h(prev, next)
	}
}
