package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"keytrack/apperr"
	"keytrack/models"
	"keytrack/realtime"
)

func TestPolicyFor(t *testing.T) {
	cases := []struct {
		notifType string
		want      ChannelPolicy
	}{
		{models.NotifReminder, ChannelPolicy{InApp: true, RealTime: true, Email: true}},
		{models.NotifOverdue, ChannelPolicy{InApp: true, RealTime: true, Email: true}},
		{models.NotifTaken, ChannelPolicy{InApp: true, RealTime: true}},
		{models.NotifReturned, ChannelPolicy{InApp: true, RealTime: true}},
		{models.NotifSecurityAlert, ChannelPolicy{InApp: true, RealTime: true}},
		{models.NotifSystem, ChannelPolicy{InApp: true}},
		{"unknown", ChannelPolicy{InApp: true}},
	}
	for _, tc := range cases {
		if got := PolicyFor(tc.notifType); got != tc.want {
			t.Errorf("PolicyFor(%s) = %+v, want %+v", tc.notifType, got, tc.want)
		}
	}
}

func TestDispatchPersistsAndPublishes(t *testing.T) {
	store := &fakeNotifStore{}
	hub := realtime.NewHub()
	n := NewNotifier(store, hub, &fakeMailer{}, false)

	userCh := hub.Subscribe("u1", realtime.UserRoom(bob.ID))
	secCh := hub.Subscribe("s1", realtime.RoleRoom(models.RoleSecurity))

	notif, err := n.Dispatch(context.Background(), Draft{
		UserID:  bob.ID,
		Role:    models.RoleSecurity,
		Type:    models.NotifSecurityAlert,
		Title:   "Overdue keys: Alice Chen",
		Message: "Alice Chen has 2 unreturned key(s): A-101, A-102",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(store.created) != 1 || !notif.SentRealtime {
		t.Fatalf("notification not persisted with the realtime flag: %+v", notif)
	}

	// both the private room and the security room see it
	for name, ch := range map[string]<-chan realtime.Event{"user room": userCh, "security room": secCh} {
		select {
		case ev := <-ch:
			if ev.Type != "notification" {
				t.Errorf("%s: event type %q", name, ev.Type)
			}
		default:
			t.Errorf("%s: no event delivered", name)
		}
	}
}

func TestDispatchSystemSkipsRealtime(t *testing.T) {
	store := &fakeNotifStore{}
	hub := realtime.NewHub()
	n := NewNotifier(store, hub, &fakeMailer{}, false)

	ch := hub.Subscribe("u1", realtime.UserRoom(alice.ID))
	notif, err := n.Dispatch(context.Background(), Draft{UserID: alice.ID, Type: models.NotifSystem, Title: "Maintenance"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if notif.SentRealtime {
		t.Error("system notification marked realtime")
	}
	select {
	case ev := <-ch:
		t.Fatalf("system notification leaked to realtime: %+v", ev)
	default:
	}
}

func TestDispatchEmailChannel(t *testing.T) {
	store := &fakeNotifStore{}
	mail := &fakeMailer{}
	n := NewNotifier(store, realtime.NewHub(), mail, true)

	notif, err := n.Dispatch(context.Background(), Draft{
		UserID:  alice.ID,
		Type:    models.NotifOverdue,
		Title:   "Key A-101 is overdue",
		Message: "Key A-101 (Lab 101, Building A) has not been returned.",
		Email:   &EmailAddr{Address: alice.Email, Name: alice.DisplayName},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	n.Wait()

	if len(mail.sent) != 1 {
		t.Fatalf("got %d emails, want 1", len(mail.sent))
	}
	m := mail.sent[0]
	if m.To != alice.Email || m.Subject != "Key A-101 is overdue" {
		t.Errorf("email addressed wrong: %+v", m)
	}
	if !strings.Contains(m.Body, "has not been returned") {
		t.Errorf("body missing the message: %q", m.Body)
	}
	if len(store.emailed) != 1 || store.emailed[0] != notif.ID {
		t.Errorf("email delivery not recorded against the notification")
	}
}

func TestDispatchEmailRequiresAddress(t *testing.T) {
	mail := &fakeMailer{}
	n := NewNotifier(&fakeNotifStore{}, realtime.NewHub(), mail, true)

	// overdue allows email, but no recipient address was supplied
	if _, err := n.Dispatch(context.Background(), Draft{UserID: alice.ID, Type: models.NotifOverdue, Title: "t"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	n.Wait()
	if len(mail.sent) != 0 {
		t.Fatalf("sent %d emails with no address", len(mail.sent))
	}
}

func TestDispatchEmailDisabledGlobally(t *testing.T) {
	mail := &fakeMailer{}
	n := NewNotifier(&fakeNotifStore{}, realtime.NewHub(), mail, false)

	if _, err := n.Dispatch(context.Background(), Draft{
		UserID: alice.ID,
		Type:   models.NotifReminder,
		Title:  "t",
		Email:  &EmailAddr{Address: alice.Email},
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	n.Wait()
	if len(mail.sent) != 0 {
		t.Fatalf("email fired while globally disabled")
	}
}

func TestDispatchRealtimeFlagTracksDelivery(t *testing.T) {
	store := &fakeNotifStore{}
	n := NewNotifier(store, realtime.NewHub(), &fakeMailer{}, false)

	notif, err := n.Dispatch(context.Background(), Draft{UserID: alice.ID, Type: models.NotifTaken, Title: "t"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !notif.SentRealtime {
		t.Error("delivered notification not flagged realtime")
	}
	if len(store.rtMarked) != 1 || store.rtMarked[0] != notif.ID {
		t.Errorf("realtime delivery not recorded against the notification")
	}

	// a failing fanout leaves the flag off and does not fail the dispatch
	store = &fakeNotifStore{}
	n = NewNotifier(store, errFanout{err: errors.New("broker down")}, &fakeMailer{}, false)
	notif, err = n.Dispatch(context.Background(), Draft{UserID: alice.ID, Type: models.NotifTaken, Title: "t"})
	if err != nil {
		t.Fatalf("dispatch with failing fanout: %v", err)
	}
	if notif.SentRealtime {
		t.Error("undelivered notification flagged realtime")
	}
	if len(store.rtMarked) != 0 {
		t.Error("failed publish recorded as delivered")
	}
}

func TestDispatchStoreFailurePropagates(t *testing.T) {
	store := &fakeNotifStore{createErr: errors.New("connection refused")}
	n := NewNotifier(store, realtime.NewHub(), &fakeMailer{}, false)

	_, err := n.Dispatch(context.Background(), Draft{UserID: alice.ID, Type: models.NotifTaken, Title: "t"})
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("got %v, want internal", err)
	}
	if apperr.Message(err) == "connection refused" {
		t.Error("store detail leaked into the user-facing message")
	}
}

func TestDispatchExpiry(t *testing.T) {
	store := &fakeNotifStore{}
	n := NewNotifier(store, realtime.NewHub(), &fakeMailer{}, false)
	fixed := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	cases := []struct {
		notifType string
		want      time.Time
	}{
		{models.NotifOverdue, fixed.Add(7 * 24 * time.Hour)},
		{models.NotifReminder, fixed.Add(7 * 24 * time.Hour)},
		{models.NotifTaken, fixed.Add(30 * 24 * time.Hour)},
		{models.NotifSystem, fixed.Add(30 * 24 * time.Hour)},
	}
	for _, tc := range cases {
		notif, err := n.Dispatch(context.Background(), Draft{UserID: alice.ID, Type: tc.notifType, Title: "t"})
		if err != nil {
			t.Fatalf("dispatch %s: %v", tc.notifType, err)
		}
		if !notif.ExpiresAt.Equal(tc.want) {
			t.Errorf("%s expires at %v, want %v", tc.notifType, notif.ExpiresAt, tc.want)
		}
	}
}
