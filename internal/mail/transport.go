package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/unclebandit/mailcampaign/internal/logger"
	"github.com/unclebandit/mailcampaign/internal/metrics"
)

var ErrTransportClosed = errors.New("mail transport closed")

// Transport is the relay handle a dispatch run owns.
type Transport interface {
	// Verify checks connectivity and credentials.
	Verify(ctx context.Context) error
	Send(ctx context.Context, m Message) error
	Close() error
}

// TransportFactory builds one transport per dispatch run.
type TransportFactory func(s Settings) (Transport, error)

// PoolConfig bounds the pooled transport.
type PoolConfig struct {
	MaxConnections int
	MaxMessages    int           // messages per connection before it is rotated
	RateLimit      int           // messages per RateWindow
	RateWindow     time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 5
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 100
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 14
	}
	if c.RateWindow <= 0 {
		c.RateWindow = 4 * time.Second
	}
	return c
}

type dialer interface {
	Dial() (gomail.SendCloser, error)
}

type pooledConn struct {
	sc   gomail.SendCloser
	sent int
}

// PooledTransport reuses up to MaxConnections SMTP connections for every send of a run.
type PooledTransport struct {
	settings Resolved
	cfg      PoolConfig
	dialer   dialer
	limiter  *rate.Limiter
	slots    chan struct{}
	idle     chan *pooledConn
	log      *logger.Logger

	mu     sync.Mutex
	closed bool
}

// PooledFactory returns a TransportFactory building gomail backed pooled transports.
func PooledFactory(cfg PoolConfig, log *logger.Logger) TransportFactory {
	return func(s Settings) (Transport, error) {
		return NewPooledTransport(s, cfg, log)
	}
}

func NewPooledTransport(s Settings, cfg PoolConfig, log *logger.Logger) (*PooledTransport, error) {
	r := Resolve(s)
	if r.Auth.User == "" || r.Auth.Pass == "" {
		return nil, errors.New("smtp credentials are required")
	}

	d := gomail.NewDialer(r.Host, r.Port, r.Auth.User, r.Auth.Pass)
	d.SSL = r.Secure
	d.TLSConfig = &tls.Config{ServerName: r.Host}
	if r.RequireTLS {
		d.TLSConfig.MinVersion = tls.VersionTLS12
	}

	return newPooledTransport(r, d, cfg, log), nil
}

func newPooledTransport(r Resolved, d dialer, cfg PoolConfig, log *logger.Logger) *PooledTransport {
	cfg = cfg.withDefaults()
	if r.RateLimit > 0 {
		cfg.RateLimit = r.RateLimit
	}
	if log == nil {
		log = logger.Nop()
	}

	// Burst 1 spaces sends RateWindow/RateLimit apart, so no window of RateWindow holds more
	// than RateLimit sends. A larger burst would let a full bucket through on top of the refill.
	every := cfg.RateWindow / time.Duration(cfg.RateLimit)
	return &PooledTransport{
		settings: r,
		cfg:      cfg,
		dialer:   d,
		limiter:  rate.NewLimiter(rate.Every(every), 1),
		slots:    make(chan struct{}, cfg.MaxConnections),
		idle:     make(chan *pooledConn, cfg.MaxConnections),
		log:      log.WithComponent("mail"),
	}
}

// Settings returns the provider-resolved connection parameters.
func (t *PooledTransport) Settings() Resolved { return t.settings }

func (t *PooledTransport) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.release()

	c, err := t.dial()
	if err != nil {
		metrics.MailVerifyFailure.WithLabelValues(t.settings.Host).Inc()
		return err
	}
	t.put(c)

	t.log.Info().
		Str("host", t.settings.Host).
		Int("port", t.settings.Port).
		Str("provider", t.settings.Provider).
		Msg("smtp relay verified")
	return nil
}

func (t *PooledTransport) Send(ctx context.Context, m Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.release()

	c, err := t.get()
	if err != nil {
		metrics.MailSendFailure.WithLabelValues(t.settings.Host).Inc()
		return err
	}

	if err := gomail.Send(c.sc, BuildMessage(t.settings.Settings, m)); err != nil {
		// the connection state is unknown after a failed transaction
		_ = c.sc.Close()
		metrics.MailSendFailure.WithLabelValues(t.settings.Host).Inc()
		return err
	}
	metrics.MailSendSuccess.WithLabelValues(t.settings.Host).Inc()

	c.sent++
	if c.sent >= t.cfg.MaxMessages {
		if err := c.sc.Close(); err != nil {
			t.log.Warn().Err(err).Msg("close rotated smtp connection")
		}
		return nil
	}
	t.put(c)
	return nil
}

// Close releases every pooled connection. It is safe to call more than once.
func (t *PooledTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var errs []error
	for {
		select {
		case c := <-t.idle:
			if err := c.sc.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			if len(errs) > 0 {
				return fmt.Errorf("close smtp pool: %w", errors.Join(errs...))
			}
			return nil
		}
	}
}

func (t *PooledTransport) acquire(ctx context.Context) error {
	select {
	case t.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *PooledTransport) release() { <-t.slots }

func (t *PooledTransport) get() (*pooledConn, error) {
	select {
	case c := <-t.idle:
		return c, nil
	default:
		return t.dial()
	}
}

func (t *PooledTransport) dial() (*pooledConn, error) {
	sc, err := t.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", t.settings.Host, t.settings.Port, err)
	}
	metrics.MailConnectionsOpened.WithLabelValues(t.settings.Host).Inc()
	return &pooledConn{sc: sc}, nil
}

func (t *PooledTransport) put(c *pooledConn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = c.sc.Close()
		return
	}
	select {
	case t.idle <- c:
	default:
		_ = c.sc.Close()
	}
}

func (t *PooledTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
