package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridNotifier delivers messages as e-mail through the SendGrid v3 API.
type SendGridNotifier struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

// NewSendGridNotifier builds a notifier sending from fromAddr, displayed as appName.
func NewSendGridNotifier(apiKey, appName, fromAddr string) *SendGridNotifier {
	return &SendGridNotifier{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(appName, fromAddr),
	}
}

// Send implements Notifier.
func (n *SendGridNotifier) Send(ctx context.Context, m Message) error {
	to := sgmail.NewEmail("", m.To)
	msg := sgmail.NewSingleEmail(n.from, m.Subject, to, m.Body, "")
	res, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
