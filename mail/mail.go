// Package mail is the optional mail collaborator. When the host supplies no
// mailer, self-service reset and verification flows are unavailable and
// passwords are set administratively.
package mail

import (
	"context"
	"fmt"
)

// Message is a single outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages. Delivery failures are the mailer's concern; the
// core never retries.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Nop discards all messages. Useful in tests and mail-less deployments that
// still want a non-nil collaborator.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }

// PasswordResetMessage builds the reset mail around a one-time link.
func PasswordResetMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Password reset request",
		Body: fmt.Sprintf(
			"<p>A password reset was requested for this address.</p>"+
				"<p><a href=\"%s\">Choose a new password</a></p>"+
				"<p>If you did not request this, you can ignore this message.</p>",
			link),
	}
}

// VerificationMessage builds the account-verification mail.
func VerificationMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Confirm your account",
		Body: fmt.Sprintf(
			"<p>Welcome! Confirm ownership of this address to activate your account.</p>"+
				"<p><a href=\"%s\">Verify my account</a></p>",
			link),
	}
}
