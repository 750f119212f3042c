package config

import (
	"strings"

	"github.com/danmuck/wordbiz/internal/client"
	"github.com/danmuck/wordbiz/internal/protocol/session"
	"github.com/danmuck/wordbiz/internal/supervisor"
)

// Transport maps the tuning keys onto the socket layer config.
func (c File) Transport() (session.Config, error) {
	out := session.DefaultConfig()
	var err error
	if out.Backoff.InitialDelay, err = parsePositive("retry_interval", c.RetryInterval); err != nil {
		return session.Config{}, err
	}
	if out.Backoff.MaxDelay, err = parsePositive("retry_max_interval", c.RetryMaxInterval); err != nil {
		return session.Config{}, err
	}
	if out.ConnectTimeout, err = parsePositive("connect_timeout", c.ConnectTimeout); err != nil {
		return session.Config{}, err
	}
	if out.ReadTimeout, err = parsePositive("read_timeout", c.ReadTimeout); err != nil {
		return session.Config{}, err
	}
	if out.ReplyTimeout, err = parsePositive("reply_timeout", c.ReplyTimeout); err != nil {
		return session.Config{}, err
	}
	if out.WriteTimeout, err = parsePositive("write_timeout", c.WriteTimeout); err != nil {
		return session.Config{}, err
	}
	out.Backoff.Multiplier = c.RetryMultiplier
	if c.MaxReplyBytes > 0 {
		out.MaxReplyBytes = c.MaxReplyBytes
	}
	out.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(c.SecurityMode))
	out.TLS = session.TLSConfig{
		Enabled:            c.TLSEnabled,
		Mutual:             c.TLSMutual,
		CAFile:             strings.TrimSpace(c.TLSCAFile),
		CertFile:           strings.TrimSpace(c.TLSCertFile),
		KeyFile:            strings.TrimSpace(c.TLSKeyFile),
		ServerName:         strings.TrimSpace(c.TLSServerName),
		InsecureSkipVerify: c.TLSInsecureSkipVerify,
	}
	if err := out.ValidateClientTransport(); err != nil {
		return session.Config{}, err
	}
	return out, nil
}

// ServiceConfig builds the runtime configuration for supervisor.NewService.
func (c File) ServiceConfig() (supervisor.ServiceConfig, error) {
	transport, err := c.Transport()
	if err != nil {
		return supervisor.ServiceConfig{}, err
	}
	sup := supervisor.DefaultConfig()
	sup.Backoff = transport.Backoff
	sup.ShutdownTimeout = transport.ReplyTimeout + transport.WriteTimeout

	return supervisor.ServiceConfig{
		Client: client.Config{
			Host:              strings.TrimSpace(c.Host),
			Port:              c.Port,
			ClientVersion:     strings.TrimSpace(c.ClientVersion),
			IncrementSequence: c.IncrementSequence,
			Transport:         transport,
		},
		Credentials: client.Credentials{
			Username: strings.TrimSpace(c.Username),
			Password: c.Password,
		},
		Supervisor: sup,
	}, nil
}
