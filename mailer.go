package identity

import (
	"context"
	"time"
)

// mailerTimeout bounds outbound mail calls so a stalled SMTP relay
// cannot hold a request open.
const mailerTimeout = 10 * time.Second

// LogMailer is the default Mailer: it logs what would be sent. Real
// deployments plug in an SMTP or API-backed implementation.
type LogMailer struct {
	logger Logger
}

var _ Mailer = (*LogMailer)(nil)

func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendRegister(ctx context.Context, user *User, verifyURL string) error {
	m.logger.Info("mail register to=%s url=%s", user.Email, verifyURL)
	return nil
}

func (m *LogMailer) SendPostRegister(ctx context.Context, user *User) error {
	m.logger.Info("mail post-register to=%s", user.Email)
	return nil
}

func (m *LogMailer) SendResetPassword(ctx context.Context, user *User, resetURL string) error {
	m.logger.Info("mail reset-password to=%s url=%s", user.Email, resetURL)
	return nil
}

func (m *LogMailer) SendValidationEmail(ctx context.Context, user *User, email, validationURL string) error {
	m.logger.Info("mail validate-address to=%s url=%s", email, validationURL)
	return nil
}

func (m *LogMailer) SendClaim(ctx context.Context, user *User, resetURL string) error {
	m.logger.Info("mail claim-account to=%s url=%s", user.Email, resetURL)
	return nil
}

// sendMail runs one Mailer call with a timeout and logs failures.
// Delivery problems never fail the surrounding operation.
func sendMail(ctx context.Context, logger Logger, what string, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, mailerTimeout)
	defer cancel()

	if err := send(ctx); err != nil {
		logger.Error("failed to send %s email: %v", what, err)
	}
}
