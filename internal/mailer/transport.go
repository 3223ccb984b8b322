package mailer

import (
	"fmt"
	"net/smtp"
	"sync"

	"github.com/jordan-wright/email"
)

// Transport abstracts the actual mail delivery.
type Transport interface {
	Send(e *email.Email) error
}

// SMTPConfig holds the SMTP transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Sender   string `yaml:"sender"`
}

// Configured reports whether SMTP delivery is set up at all. An empty
// host is a valid configuration: notifications are simply skipped.
func (c SMTPConfig) Configured() bool {
	return c.Host != ""
}

// SMTPTransport sends mail over plain SMTP with optional auth.
type SMTPTransport struct {
	addr string
	auth smtp.Auth
}

// NewSMTP creates an SMTP transport from config.
func NewSMTP(cfg SMTPConfig) *SMTPTransport {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPTransport{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
	}
}

// Send implements Transport.
func (t *SMTPTransport) Send(e *email.Email) error {
	return e.Send(t.addr, t.auth)
}

// MockTransport records sent mail instead of delivering it.
type MockTransport struct {
	mu   sync.Mutex
	sent []*email.Email
	// Err, when set, fails every send.
	Err error
}

// NewMock creates an empty mock transport.
func NewMock() *MockTransport {
	return &MockTransport{}
}

// Send implements Transport.
func (t *MockTransport) Send(e *email.Email) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Err != nil {
		return t.Err
	}
	t.sent = append(t.sent, e)
	return nil
}

// SentCount returns the number of successfully sent mails.
func (t *MockTransport) SentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.sent)
}

// LastSent returns the most recently sent mail, nil when none.
func (t *MockTransport) LastSent() *email.Email {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sent) == 0 {
		return nil
	}
	return t.sent[len(t.sent)-1]
}
