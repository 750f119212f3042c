package supervisor

import (
	"context"

	"github.com/danmuck/wordbiz/internal/client"
)

// Driver is the session surface the supervisor reconciles. All calls come from
// the supervisor goroutine.
type Driver interface {
	State() client.State
	Connect(ctx context.Context) error
	Login(ctx context.Context) error
	Poll() ([]byte, error)
	Disconnect(ctx context.Context)
}

// connIdentifier is implemented by drivers that can name their socket.
type connIdentifier interface {
	ConnID() string
}

// SessionDriver binds a client.Session to the credentials it logs in with.
type SessionDriver struct {
	Session     *client.Session
	Credentials client.Credentials
}

func NewSessionDriver(s *client.Session, creds client.Credentials) *SessionDriver {
	return &SessionDriver{Session: s, Credentials: creds}
}

func (d *SessionDriver) State() client.State {
	return d.Session.State()
}

func (d *SessionDriver) Connect(ctx context.Context) error {
	return d.Session.Connect(ctx)
}

func (d *SessionDriver) Login(ctx context.Context) error {
	return d.Session.Login(ctx, d.Credentials)
}

func (d *SessionDriver) Poll() ([]byte, error) {
	return d.Session.Poll()
}

func (d *SessionDriver) Disconnect(ctx context.Context) {
	d.Session.Disconnect(ctx)
}

func (d *SessionDriver) ConnID() string {
	return d.Session.ConnID()
}
