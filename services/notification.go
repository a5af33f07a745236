package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"sync"

	"tripsplit-backend/models"

	"firebase.google.com/go/v4/messaging"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type EventKind string

const (
	EventExpenseAdded   EventKind = "expense_added"
	EventExpenseUpdated EventKind = "expense_updated"
)

type Event struct {
	Kind    EventKind
	Actor   string
	Expense models.Expense
}

// PushSender delivers a push notification to one device token.
type PushSender interface {
	Push(ctx context.Context, token, title, body string, data map[string]string) error
}

// MailSender delivers one HTML e-mail.
type MailSender interface {
	Mail(ctx context.Context, to models.Profile, subject, html string) error
}

// Notifier tells participants about new and edited expenses. Events are
// queued and delivered by a background worker; a full queue drops the event.
type Notifier struct {
	events    chan Event
	directory Directory
	push      PushSender // optional
	mail      MailSender // optional

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewNotifier(dir Directory, push PushSender, mail MailSender, bufferSize int) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		events:    make(chan Event, bufferSize),
		directory: dir,
		push:      push,
		mail:      mail,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (n *Notifier) Start() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-n.ctx.Done():
				slog.Info("draining notifications before shutdown", "remaining_events", len(n.events))
				for len(n.events) > 0 {
					n.deliver(context.Background(), <-n.events)
				}
				return
			case evt := <-n.events:
				n.deliver(n.ctx, evt)
			}
		}
	}()
}

func (n *Notifier) Publish(evt Event) {
	select {
	case n.events <- evt:
	default:
		slog.Warn("notification queue full, dropping event", "event_type", evt.Kind, "expense_id", evt.Expense.ID)
	}
}

func (n *Notifier) Shutdown() {
	n.cancel()
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, evt Event) {
	e := evt.Expense
	actor := n.profile(ctx, evt.Actor)
	payer := n.profile(ctx, e.Payer)

	for _, split := range e.Splits {
		if split.Participant == e.Payer || split.Participant == evt.Actor {
			continue
		}
		user := n.profile(ctx, split.Participant)
		msg := message{
			Actor:    actor.Name(),
			Payer:    payer.Name(),
			User:     user.Name(),
			Label:    e.Label,
			Total:    e.Total.Display(),
			Share:    split.Share.Display(),
			Updated:  evt.Kind == EventExpenseUpdated,
			Currency: string(e.Total.Currency),
		}

		if n.push != nil && user.FCMToken != "" {
			err := n.push.Push(ctx, user.FCMToken, msg.title(), msg.body(), map[string]string{
				"type":       string(evt.Kind),
				"expense_id": e.ID,
			})
			if err != nil {
				slog.Error("push notification failed", "user_id", user.ID, "expense_id", e.ID, "error", err)
			}
		}

		if n.mail != nil && user.Email != "" {
			html, err := msg.html()
			if err != nil {
				slog.Error("rendering expense e-mail", "expense_id", e.ID, "error", err)
				continue
			}
			if err := n.mail.Mail(ctx, user, msg.title(), html); err != nil {
				slog.Error("e-mail notification failed", "user_id", user.ID, "expense_id", e.ID, "error", err)
			}
		}
	}
}

func (n *Notifier) profile(ctx context.Context, id string) models.Profile {
	if n.directory != nil {
		if p, err := n.directory.Lookup(ctx, id); err == nil {
			if p.ID == "" {
				p.ID = id
			}
			return p
		}
	}
	return models.Profile{ID: id}
}

type message struct {
	Actor, Payer, User string
	Label              string
	Total, Share       string
	Currency           string
	Updated            bool
}

func (m message) title() string {
	if m.Updated {
		return fmt.Sprintf("%s updated \"%s\"", m.Actor, m.Label)
	}
	return fmt.Sprintf("%s added an expense", m.Actor)
}

func (m message) body() string {
	return fmt.Sprintf("You owe %s %s for \"%s\"", m.Payer, m.Share, m.Label)
}

var expenseMail = template.Must(template.New("expense").Parse(`
<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5;">
	<div style="background: white; border-radius: 12px; padding: 32px; box-shadow: 0 2px 8px rgba(0,0,0,0.1);">
		<h2 style="color: #552583; margin-top: 0;">{{if .Updated}}Expense Updated{{else}}New Expense Added{{end}}</h2>
		<p>Hi <strong>{{.User}}</strong>,</p>
		<p><strong>{{.Actor}}</strong> {{if .Updated}}changed{{else}}added{{end}} an expense paid by <strong>{{.Payer}}</strong>:</p>
		<div style="background: #f8f9fa; border-radius: 8px; padding: 16px; margin: 16px 0;">
			<p style="margin: 4px 0; font-size: 18px;"><strong>{{.Label}}</strong></p>
			<p style="margin: 4px 0; color: #666;">Total: {{.Total}}</p>
			<p style="margin: 4px 0; color: #e53e3e; font-size: 18px;"><strong>Your share: {{.Share}}</strong></p>
		</div>
	</div>
</body>
</html>`))

func (m message) html() (string, error) {
	var buf bytes.Buffer
	if err := expenseMail.Execute(&buf, m); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FCMSender sends push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	Client *messaging.Client
}

func (s FCMSender) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	_, err := s.Client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	return err
}

// SendGridSender sends e-mail through SendGrid.
type SendGridSender struct {
	Client   *sendgrid.Client
	From     string
	FromName string
}

func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	return &SendGridSender{Client: sendgrid.NewSendClient(apiKey), From: from, FromName: fromName}
}

func (s *SendGridSender) Mail(ctx context.Context, to models.Profile, subject, html string) error {
	msg := mail.NewSingleEmail(
		mail.NewEmail(s.FromName, s.From),
		subject,
		mail.NewEmail(to.Name(), to.Email),
		"",
		html,
	)
	resp, err := s.Client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
