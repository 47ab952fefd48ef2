package services

import (
	"context"
	"sync"
	"time"

	"keytrack/apperr"
	"keytrack/db"
	"keytrack/models"
	"keytrack/realtime"
)

// In-memory fakes mirroring the repo semantics closely enough that the
// service-level behavior under test is real.

type fakeKeyStore struct {
	mu    sync.Mutex
	keys  map[string]*models.Key
	order []string

	// per-key injected failures for the mutating calls; lookups still work,
	// so admission passes and the commit is what fails
	failTake   map[string]error
	failReturn map[string]error
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{
		keys:       make(map[string]*models.Key),
		failTake:   make(map[string]error),
		failReturn: make(map[string]error),
	}
}

func (f *fakeKeyStore) add(k models.Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k.IsActive = true
	if k.Status == "" {
		k.Status = models.KeyAvailable
	}
	f.keys[k.KeyNumber] = &k
	f.order = append(f.order, k.KeyNumber)
}

func (f *fakeKeyStore) get(keyNumber string) models.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.keys[keyNumber]
}

func (f *fakeKeyStore) FindKeyByNumber(_ context.Context, keyNumber string) (*models.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[keyNumber]
	if !ok || !k.IsActive {
		return nil, apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
	}
	cp := *k
	return &cp, nil
}

func (f *fakeKeyStore) TakeKey(_ context.Context, keyNumber string, h db.Holder) (*models.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[keyNumber]
	if !ok || !k.IsActive {
		return nil, apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
	}
	if err := f.failTake[keyNumber]; err != nil {
		return nil, err
	}
	if k.Status != models.KeyAvailable {
		return nil, apperr.E(apperr.KindConflict, "key %s is already taken", keyNumber)
	}
	now := time.Now()
	k.Status = models.KeyUnavailable
	k.HolderID, k.HolderName, k.HolderEmail, k.HolderRole = &h.ID, &h.Name, &h.Email, &h.Role
	k.TakenAt = &now
	k.ReturnedAt = nil
	cp := *k
	return &cp, nil
}

func (f *fakeKeyStore) ReturnKey(_ context.Context, keyNumber string, opts db.ReturnOptions) (*db.ReturnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[keyNumber]
	if !ok || !k.IsActive {
		return nil, apperr.E(apperr.KindNotFound, "key %s not found", keyNumber)
	}
	if err := f.failReturn[keyNumber]; err != nil {
		return nil, err
	}
	if k.Status != models.KeyUnavailable || k.HolderID == nil {
		return nil, apperr.E(apperr.KindConflict, "key %s is not taken", keyNumber)
	}
	if opts.RequireHolderID != nil && *k.HolderID != *opts.RequireHolderID {
		return nil, apperr.E(apperr.KindValidation, "key %s is not held by the named user", keyNumber)
	}
	if !opts.Privileged && *k.HolderID != opts.ActorID {
		return nil, apperr.E(apperr.KindForbidden, "key %s is held by someone else", keyNumber)
	}
	prev := db.Holder{ID: *k.HolderID}
	if k.HolderName != nil {
		prev.Name = *k.HolderName
	}
	if k.HolderEmail != nil {
		prev.Email = *k.HolderEmail
	}
	if k.HolderRole != nil {
		prev.Role = *k.HolderRole
	}
	now := time.Now()
	k.Status = models.KeyAvailable
	k.HolderID, k.HolderName, k.HolderEmail, k.HolderRole = nil, nil, nil, nil
	k.ReturnedAt = &now
	cp := *k
	return &db.ReturnResult{Key: &cp, PrevHolder: prev}, nil
}

func (f *fakeKeyStore) ListUnreturnedKeys(_ context.Context) ([]models.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Key
	for _, kn := range f.order {
		k := f.keys[kn]
		if k.IsActive && k.Status == models.KeyUnavailable {
			out = append(out, *k)
		}
	}
	return out, nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore(users ...models.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[string]*models.User)}
	for i := range users {
		u := users[i]
		f.users[u.ID] = &u
	}
	return f
}

func (f *fakeUserStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) ListSecurityUsers(_ context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if u.Role == models.RoleSecurity && u.IsActive && u.Verified {
			out = append(out, *u)
		}
	}
	return out, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
	err     error
}

func (f *fakeAuditStore) CreateAuditEntry(_ context.Context, e *models.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAuditStore) byAction(action string) []models.AuditLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range f.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeNotifStore struct {
	mu         sync.Mutex
	created    []models.Notification
	emailed    []string
	rtMarked   []string
	createErr  error
	failForUID map[string]error
}

func (f *fakeNotifStore) CreateNotification(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if err := f.failForUID[n.UserID]; err != nil {
		return err
	}
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeNotifStore) MarkEmailSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailed = append(f.emailed, id)
	return nil
}

func (f *fakeNotifStore) MarkRealtimeSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rtMarked = append(f.rtMarked, id)
	return nil
}

func (f *fakeNotifStore) PurgeExpiredNotifications(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.Notification
	var n int64
	for _, notif := range f.created {
		if notif.IsExpired(now) {
			n++
			continue
		}
		kept = append(kept, notif)
	}
	f.created = kept
	return n, nil
}

func (f *fakeNotifStore) byType(notifType string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.created {
		if n.Type == notifType {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeNotifStore) forUser(userID string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.created {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type fakeRunStore struct {
	mu   sync.Mutex
	runs []models.ReminderRun
}

func (f *fakeRunStore) CreateReminderRun(_ context.Context, run *models.ReminderRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (f *fakeMailer) Send(to, _ string, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

// recFanout records publishes per room.
type recFanout struct {
	mu     sync.Mutex
	byRoom map[string][]realtime.Event
}

func newRecFanout() *recFanout {
	return &recFanout{byRoom: make(map[string][]realtime.Event)}
}

func (f *recFanout) Publish(_ context.Context, room string, ev realtime.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byRoom[room] = append(f.byRoom[room], ev)
	return nil
}

func (f *recFanout) events(room string) []realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byRoom[room]
}

// errFanout fails every publish.
type errFanout struct{ err error }

func (f errFanout) Publish(context.Context, string, realtime.Event) error { return f.err }

// fixture wires a KeyService with all fakes.
type fixture struct {
	keys   *fakeKeyStore
	users  *fakeUserStore
	audit  *fakeAuditStore
	notifs *fakeNotifStore
	mail   *fakeMailer
	fanout *recFanout
	svc    *KeyService
}

func newFixture(users ...models.User) *fixture {
	f := &fixture{
		keys:   newFakeKeyStore(),
		users:  newFakeUserStore(users...),
		audit:  &fakeAuditStore{},
		notifs: &fakeNotifStore{},
		mail:   &fakeMailer{},
		fanout: newRecFanout(),
	}
	notifier := NewNotifier(f.notifs, f.fanout, f.mail, false)
	f.svc = NewKeyService(f.keys, f.users, f.audit, notifier, f.fanout, "test-qr-secret", 300*time.Second)
	return f
}
