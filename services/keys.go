package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"keytrack/apperr"
	"keytrack/db"
	"keytrack/models"
	"keytrack/realtime"
)

// Actor is the authenticated identity a request acts as. Always passed
// explicitly; nothing reads it out of ambient request state.
type Actor struct {
	ID    string
	Name  string
	Email string
	Role  string
	IP    string
}

func (a Actor) Privileged() bool {
	return a.Role == models.RoleSecurity || a.Role == models.RoleAdmin
}

// KeyService is the sole authority for key state transitions. The store does
// the atomic check-and-flip; this layer adds authorization, QR handling and
// the post-commit side effects (audit, notify, publish), none of which may
// fail the caller once the state change committed.
type KeyService struct {
	keys     KeyStore
	users    UserStore
	audit    AuditStore
	notifier *Notifier
	fanout   realtime.Fanout

	qrSecret []byte
	qrMaxAge time.Duration

	now func() time.Time
	wg  sync.WaitGroup
}

func NewKeyService(keys KeyStore, users UserStore, audit AuditStore, notifier *Notifier, fanout realtime.Fanout, qrSecret string, qrMaxAge time.Duration) *KeyService {
	return &KeyService{
		keys:     keys,
		users:    users,
		audit:    audit,
		notifier: notifier,
		fanout:   fanout,
		qrSecret: []byte(qrSecret),
		qrMaxAge: qrMaxAge,
		now:      time.Now,
	}
}

// background runs a side effect off the caller's path with its own context,
// so a slow audit insert or notification never delays the response.
func (s *KeyService) background(f func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		f(ctx)
	}()
}

// Wait blocks until pending side effects drain. Shutdown and tests.
func (s *KeyService) Wait() {
	s.wg.Wait()
	s.notifier.Wait()
}

func (s *KeyService) record(ctx context.Context, e *models.AuditLogEntry) {
	if err := s.audit.CreateAuditEntry(ctx, e); err != nil {
		log.Printf("[AUDIT] write failed (%s %s): %v", e.Action, e.KeyNumber, err)
	}
}

func (s *KeyService) dispatch(ctx context.Context, d Draft) {
	if _, err := s.notifier.Dispatch(ctx, d); err != nil {
		log.Printf("[NOTIFY] dispatch failed (%s to %s): %v", d.Type, d.UserID, err)
	}
}

func (s *KeyService) publish(ctx context.Context, ev realtime.Event, rooms ...string) {
	for _, room := range rooms {
		if err := s.fanout.Publish(ctx, room, ev); err != nil {
			log.Printf("[RT] publish to %s failed: %v", room, err)
		}
	}
}

// TakeKey flips an available key to the actor.
func (s *KeyService) TakeKey(ctx context.Context, keyNumber string, actor Actor) (*models.Key, error) {
	k, err := s.keys.TakeKey(ctx, keyNumber, db.Holder{ID: actor.ID, Name: actor.Name, Email: actor.Email, Role: actor.Role})
	if err != nil {
		return nil, err
	}
	s.afterTake(ctx, k, actor, nil, "")
	return k, nil
}

// afterTake runs the take side effects. subject is non-nil for QR takes,
// where the scanner acts as agent for the subject.
func (s *KeyService) afterTake(ctx context.Context, k *models.Key, actor Actor, subject *models.User, correlationID string) {
	entry := &models.AuditLogEntry{
		Action:      models.AuditKeyTaken,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		KeyNumber:   k.KeyNumber,
		KeyName:     k.Name,
		KeyLocation: k.Location,
		SourceIP:    actor.IP,
	}
	holderID, holderName := actor.ID, actor.Name
	holderRole := actor.Role
	if subject != nil {
		holderID, holderName = subject.ID, subject.DisplayName
		holderRole = subject.Role
		entry.OriginalHolderID = &subject.ID
		entry.OriginalHolderName = &subject.DisplayName
	}
	if correlationID != "" {
		entry.QRCorrelationID = &correlationID
	}
	s.background(func(ctx context.Context) { s.record(ctx, entry) })

	msg := fmt.Sprintf("You took key %s (%s).", k.KeyNumber, k.Name)
	if subject != nil {
		msg = fmt.Sprintf("Key %s (%s) was issued to you by %s.", k.KeyNumber, k.Name, actor.Name)
	}
	s.background(func(ctx context.Context) {
		s.dispatch(ctx, Draft{
			UserID:  holderID,
			Role:    holderRole,
			Type:    models.NotifTaken,
			Title:   "Key " + k.KeyNumber + " taken",
			Message: msg,
			Metadata: map[string]any{
				"keyNumber": k.KeyNumber,
			},
		})
	})

	ev := realtime.Event{
		Type:      "key_taken",
		KeyNumber: k.KeyNumber,
		At:        s.now(),
		Data:      map[string]any{"holderId": holderID, "holderName": holderName},
	}
	rooms := []string{realtime.GlobalRoom, realtime.UserRoom(holderID)}
	if subject != nil && actor.ID != holderID {
		rooms = append(rooms, realtime.UserRoom(actor.ID))
	}
	s.publish(ctx, ev, rooms...)
}

// ReturnKey releases a key held by the actor, or by anyone when the actor is
// security/admin (collective return).
func (s *KeyService) ReturnKey(ctx context.Context, keyNumber string, actor Actor) (*models.Key, error) {
	res, err := s.keys.ReturnKey(ctx, keyNumber, db.ReturnOptions{
		ActorID:    actor.ID,
		Privileged: actor.Privileged(),
	})
	if err != nil {
		return nil, err
	}
	s.afterReturn(ctx, res, actor, "")
	return res.Key, nil
}

func (s *KeyService) afterReturn(ctx context.Context, res *db.ReturnResult, actor Actor, correlationID string) {
	k := res.Key
	prev := res.PrevHolder
	collective := prev.ID != actor.ID

	entry := &models.AuditLogEntry{
		Action:      models.AuditKeyReturned,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		KeyNumber:   k.KeyNumber,
		KeyName:     k.Name,
		KeyLocation: k.Location,
		SourceIP:    actor.IP,
	}
	if collective {
		entry.Action = models.AuditKeyCollectiveReturn
		entry.OriginalHolderID = &prev.ID
		entry.OriginalHolderName = &prev.Name
	}
	if correlationID != "" {
		entry.QRCorrelationID = &correlationID
	}
	s.background(func(ctx context.Context) { s.record(ctx, entry) })

	if collective {
		prevRole := prev.Role
		if prevRole == "" {
			prevRole = models.RoleFaculty
		}
		// only the original holder hears about it
		s.background(func(ctx context.Context) {
			s.dispatch(ctx, Draft{
				UserID:  prev.ID,
				Role:    prevRole,
				Type:    models.NotifReturned,
				Title:   "Key " + k.KeyNumber + " returned",
				Message: fmt.Sprintf("Your key %s (%s) was returned by %s.", k.KeyNumber, k.Name, actor.Name),
				Metadata: map[string]any{
					"keyNumber":  k.KeyNumber,
					"returnedBy": actor.Name,
				},
			})
		})
	} else {
		s.background(func(ctx context.Context) {
			s.dispatch(ctx, Draft{
				UserID:   actor.ID,
				Role:     actor.Role,
				Type:     models.NotifReturned,
				Title:    "Key " + k.KeyNumber + " returned",
				Message:  fmt.Sprintf("You returned key %s (%s).", k.KeyNumber, k.Name),
				Metadata: map[string]any{"keyNumber": k.KeyNumber},
			})
		})
	}

	ev := realtime.Event{
		Type:      "key_returned",
		KeyNumber: k.KeyNumber,
		At:        s.now(),
		Data:      map[string]any{"returnedBy": actor.Name},
	}
	rooms := []string{realtime.GlobalRoom, realtime.UserRoom(prev.ID)}
	if collective {
		rooms = append(rooms, realtime.UserRoom(actor.ID))
	}
	s.publish(ctx, ev, rooms...)
}

// QRScanResult reports one key of a QR batch. Admission is all-or-nothing,
// but a commit can still lose a race; that shows up here per key instead of
// failing the whole call.
type QRScanResult struct {
	KeyNumber string      `json:"keyNumber"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
	Key       *models.Key `json:"key,omitempty"`
}

type QRScanOutcome struct {
	Intent      string         `json:"intent"`
	SubjectID   string         `json:"subjectId"`
	SubjectName string         `json:"subjectName"`
	Results     []QRScanResult `json:"results"`
}

// QRScan validates a scanned payload and drives the same transitions as
// TakeKey/ReturnKey with the payload's subject as the affected user and the
// scanner attributed as agent.
func (s *KeyService) QRScan(ctx context.Context, raw string, scanner Actor) (*QRScanOutcome, error) {
	p, err := ParseQRPayload(raw, s.qrSecret, s.now(), s.qrMaxAge)
	if err != nil {
		return nil, err
	}

	subject, err := s.users.FindUserByID(ctx, p.SubjectID)
	if err != nil {
		return nil, err
	}

	// admission: every key must be in the right state before any mutation
	for _, kn := range p.KeyNumbers {
		k, err := s.keys.FindKeyByNumber(ctx, kn)
		if err != nil {
			return nil, err
		}
		switch p.Intent {
		case QRIntentReturn:
			if !k.Held() {
				return nil, apperr.E(apperr.KindConflict, "key %s is not taken", kn)
			}
			if *k.HolderID != subject.ID {
				return nil, apperr.E(apperr.KindValidation, "key %s is not held by the named user", kn)
			}
		case QRIntentRequest:
			if k.Status != models.KeyAvailable {
				return nil, apperr.E(apperr.KindConflict, "key %s is already taken", kn)
			}
		}
	}

	// commit per key; a post-admission race is reported, not rolled back
	out := &QRScanOutcome{Intent: p.Intent, SubjectID: subject.ID, SubjectName: subject.DisplayName}
	for _, kn := range p.KeyNumbers {
		var (
			k   *models.Key
			err error
		)
		switch p.Intent {
		case QRIntentReturn:
			var res *db.ReturnResult
			res, err = s.keys.ReturnKey(ctx, kn, db.ReturnOptions{
				ActorID:         scanner.ID,
				Privileged:      true,
				RequireHolderID: &subject.ID,
			})
			if err == nil {
				k = res.Key
				s.afterReturn(ctx, res, scanner, p.Nonce)
			}
		case QRIntentRequest:
			k, err = s.keys.TakeKey(ctx, kn, db.Holder{ID: subject.ID, Name: subject.DisplayName, Email: subject.Email, Role: subject.Role})
			if err == nil {
				s.afterTake(ctx, k, scanner, subject, p.Nonce)
			}
		}
		r := QRScanResult{KeyNumber: kn, OK: err == nil, Key: k}
		if err != nil {
			r.Error = apperr.Message(err)
		}
		out.Results = append(out.Results, r)
	}
	return out, nil
}

// IssueQR signs a QR payload for display. Security/admin tooling.
func (s *KeyService) IssueQR(p QRPayload) (string, error) {
	if p.IssuedAt.IsZero() {
		p.IssuedAt = s.now()
	}
	tok, err := SignQRPayload(p, s.qrSecret)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "sign QR payload", err)
	}
	return tok, nil
}
