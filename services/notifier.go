package services

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"log"
	"sync"
	"time"

	"keytrack/apperr"
	"keytrack/mailer"
	"keytrack/models"
	"keytrack/realtime"

	"github.com/google/uuid"
)

// ChannelPolicy says which delivery channels fire for an event kind. The
// table is fixed; config can only turn email off globally.
type ChannelPolicy struct {
	InApp    bool
	RealTime bool
	Email    bool
}

func PolicyFor(notifType string) ChannelPolicy {
	switch notifType {
	case models.NotifReminder, models.NotifOverdue:
		return ChannelPolicy{InApp: true, RealTime: true, Email: true}
	case models.NotifTaken, models.NotifReturned, models.NotifSecurityAlert:
		return ChannelPolicy{InApp: true, RealTime: true}
	default:
		return ChannelPolicy{InApp: true}
	}
}

func expiryFor(notifType string) time.Duration {
	switch notifType {
	case models.NotifReminder, models.NotifOverdue:
		// superseded by the next day's sweep
		return 7 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

type EmailAddr struct {
	Address string
	Name    string
}

// Draft is what a domain event hands to the dispatcher.
type Draft struct {
	UserID   string
	Role     string
	Type     string
	Priority string
	Title    string
	Message  string
	Metadata map[string]any
	// Email is required for the email channel to fire even when policy
	// allows it.
	Email *EmailAddr
}

// Notifier persists notifications and pushes them through the channels the
// policy allows. Channel failures are logged, never returned: notification
// delivery must not fail the domain operation that triggered it.
type Notifier struct {
	store    NotificationStore
	fanout   realtime.Fanout
	mail     mailer.Sender
	emailOn  bool
	now      func() time.Time
	sendWait sync.WaitGroup
}

func NewNotifier(store NotificationStore, fanout realtime.Fanout, mail mailer.Sender, emailOn bool) *Notifier {
	return &Notifier{store: store, fanout: fanout, mail: mail, emailOn: emailOn, now: time.Now}
}

var emailBody = template.Must(template.New("email").Parse(
	`<html><body><h3>{{.Title}}</h3><p>{{.Message}}</p><p style="color:#888">Campus key desk</p></body></html>`))

func (n *Notifier) Dispatch(ctx context.Context, d Draft) (*models.Notification, error) {
	pol := PolicyFor(d.Type)
	now := n.now()

	if d.Priority == "" {
		d.Priority = models.PriorityNormal
	}
	notif := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    d.UserID,
		Role:      d.Role,
		Type:      d.Type,
		Priority:  d.Priority,
		Title:     d.Title,
		Message:   d.Message,
		SentInApp: true,
		ExpiresAt: now.Add(expiryFor(d.Type)),
		CreatedAt: now,
	}
	if d.Metadata != nil {
		if b, err := json.Marshal(d.Metadata); err == nil {
			notif.Metadata = b
		}
	}

	// persistence is the in-app channel; this is the only failure that
	// propagates
	if err := n.store.CreateNotification(ctx, notif); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "persist notification", err)
	}

	if pol.RealTime {
		ev := realtime.Event{
			Type: "notification",
			At:   now,
			Data: map[string]any{
				"id":    notif.ID,
				"type":  notif.Type,
				"title": notif.Title,
			},
		}
		if err := n.fanout.Publish(ctx, realtime.UserRoom(d.UserID), ev); err != nil {
			log.Printf("[NOTIFY] realtime publish failed: %v", err)
		} else {
			notif.SentRealtime = true
			if err := n.store.MarkRealtimeSent(ctx, notif.ID); err != nil {
				log.Printf("[NOTIFY] mark realtime sent failed: %v", err)
			}
		}
		if d.Role == models.RoleSecurity {
			// every security dashboard updates live
			if err := n.fanout.Publish(ctx, realtime.RoleRoom(models.RoleSecurity), ev); err != nil {
				log.Printf("[NOTIFY] realtime publish failed: %v", err)
			}
		}
	}

	if pol.Email && n.emailOn && d.Email != nil && d.Email.Address != "" {
		n.sendWait.Add(1)
		go n.sendEmail(notif.ID, d)
	}

	return notif, nil
}

func (n *Notifier) sendEmail(notifID string, d Draft) {
	defer n.sendWait.Done()

	var buf bytes.Buffer
	if err := emailBody.Execute(&buf, d); err != nil {
		log.Printf("[NOTIFY] render email failed: %v", err)
		return
	}
	if err := n.mail.Send(d.Email.Address, d.Email.Name, d.Title, buf.String()); err != nil {
		log.Printf("[NOTIFY] email to %s failed: %v", d.Email.Address, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.store.MarkEmailSent(ctx, notifID); err != nil {
		log.Printf("[NOTIFY] mark email sent failed: %v", err)
	}
}

// Wait blocks until in-flight email sends finish. Shutdown and tests.
func (n *Notifier) Wait() { n.sendWait.Wait() }
