package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"keytrack/apperr"
	"keytrack/models"
)

// ReminderSummary is what one sweep reports back, whether scheduled or
// triggered by hand.
type ReminderSummary struct {
	Skipped                   bool     `json:"skipped"`
	SlotKey                   string   `json:"slotKey"`
	Forced                    bool     `json:"forced"`
	FacultyNotificationsSent  int      `json:"facultyNotificationsSent"`
	SecurityNotificationsSent int      `json:"securityNotificationsSent"`
	TotalUnreturnedKeys       int      `json:"totalUnreturnedKeys"`
	Errors                    []string `json:"errors,omitempty"`
}

// Scheduler owns the two recurring occurrences: the overdue sweep (guarded,
// once per slot per local day) and the notification purge (safe to repeat).
// The cadence is configuration; there is no separate dev code path.
type Scheduler struct {
	keys     KeyStore
	users    UserStore
	notifier *Notifier
	runs     RunStore
	store    NotificationStore
	guard    RunGuard

	loc        *time.Location
	reminderAt string // "HH:MM" local time
	purgeAt    string
	slot       string

	now func() time.Time
}

func NewScheduler(keys KeyStore, users UserStore, notifier *Notifier, runs RunStore, store NotificationStore, guard RunGuard, loc *time.Location, reminderAt, purgeAt, slot string) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if slot == "" {
		slot = "evening"
	}
	return &Scheduler{
		keys:       keys,
		users:      users,
		notifier:   notifier,
		runs:       runs,
		store:      store,
		guard:      guard,
		loc:        loc,
		reminderAt: reminderAt,
		purgeAt:    purgeAt,
		slot:       slot,
		now:        time.Now,
	}
}

func (s *Scheduler) slotKey(t time.Time) string {
	return fmt.Sprintf("reminder:run:%s:%s", t.In(s.loc).Format("2006-01-02"), s.slot)
}

// RunReminders scans every key still out, reminds each holder once per key,
// and alerts every security user once per holder. force bypasses the
// once-per-slot guard; a forced run still writes a run record.
func (s *Scheduler) RunReminders(ctx context.Context, force bool) (*ReminderSummary, error) {
	started := s.now()
	sum := &ReminderSummary{SlotKey: s.slotKey(started), Forced: force}

	if !force {
		ok, err := s.guard.Acquire(ctx, sum.SlotKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "reminder run guard", err)
		}
		if !ok {
			log.Printf("[SCHED] %s already ran, skipping", sum.SlotKey)
			sum.Skipped = true
			return sum, nil
		}
	}

	keys, err := s.keys.ListUnreturnedKeys(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan unreturned keys", err)
	}
	sum.TotalUnreturnedKeys = len(keys)

	// partition by holder, first-seen order
	var order []string
	parts := map[string][]models.Key{}
	for _, k := range keys {
		if k.HolderID == nil {
			continue
		}
		hid := *k.HolderID
		if _, ok := parts[hid]; !ok {
			order = append(order, hid)
		}
		parts[hid] = append(parts[hid], k)
	}

	secUsers, err := s.users.ListSecurityUsers(ctx)
	if err != nil {
		sum.Errors = append(sum.Errors, "list security users: "+err.Error())
	}

	for _, hid := range order {
		ks := parts[hid]
		holderName, holderEmail, holderRole := holderSnapshot(ks)
		if holderRole == "" {
			holderRole = models.RoleFaculty
		}

		// one reminder per key held, not one per holder
		for _, k := range ks {
			_, err := s.notifier.Dispatch(ctx, Draft{
				UserID:   hid,
				Role:     holderRole,
				Type:     models.NotifOverdue,
				Priority: models.PriorityHigh,
				Title:    "Key " + k.KeyNumber + " is overdue",
				Message:  fmt.Sprintf("Key %s (%s, %s) has not been returned. Please return it to the key desk.", k.KeyNumber, k.Name, k.Location),
				Metadata: map[string]any{"keyNumber": k.KeyNumber},
				Email:    &EmailAddr{Address: holderEmail, Name: holderName},
			})
			if err != nil {
				sum.Errors = append(sum.Errors, fmt.Sprintf("holder %s key %s: %v", hid, k.KeyNumber, err))
				continue
			}
			sum.FacultyNotificationsSent++
		}

		// one summary alert per security user per holder
		numbers := make([]string, len(ks))
		for i, k := range ks {
			numbers[i] = k.KeyNumber
		}
		alert := fmt.Sprintf("%s has %d unreturned key(s): %s", holderName, len(ks), strings.Join(numbers, ", "))
		for _, su := range secUsers {
			_, err := s.notifier.Dispatch(ctx, Draft{
				UserID:   su.ID,
				Role:     models.RoleSecurity,
				Type:     models.NotifSecurityAlert,
				Priority: models.PriorityHigh,
				Title:    "Overdue keys: " + holderName,
				Message:  alert,
				Metadata: map[string]any{"holderId": hid, "keyNumbers": numbers},
			})
			if err != nil {
				sum.Errors = append(sum.Errors, fmt.Sprintf("security %s holder %s: %v", su.ID, hid, err))
				continue
			}
			sum.SecurityNotificationsSent++
		}
	}

	run := &models.ReminderRun{
		RunDate:          started.In(s.loc).Format("2006-01-02"),
		Slot:             s.slot,
		Forced:           force,
		FacultyNotified:  sum.FacultyNotificationsSent,
		SecurityNotified: sum.SecurityNotificationsSent,
		TotalUnreturned:  sum.TotalUnreturnedKeys,
		StartedAt:        started,
		FinishedAt:       s.now(),
	}
	if len(sum.Errors) > 0 {
		joined := strings.Join(sum.Errors, "; ")
		run.Failures = &joined
	}
	if err := s.runs.CreateReminderRun(ctx, run); err != nil {
		log.Printf("[SCHED] record run failed: %v", err)
	}

	log.Printf("[SCHED] %s: %d overdue, %d faculty + %d security notifications",
		sum.SlotKey, sum.TotalUnreturnedKeys, sum.FacultyNotificationsSent, sum.SecurityNotificationsSent)
	return sum, nil
}

func holderSnapshot(ks []models.Key) (name, email, role string) {
	for _, k := range ks {
		if name == "" && k.HolderName != nil {
			name = *k.HolderName
		}
		if email == "" && k.HolderEmail != nil {
			email = *k.HolderEmail
		}
		if role == "" && k.HolderRole != nil {
			role = *k.HolderRole
		}
	}
	return name, email, role
}

// PurgeExpired deletes notifications past their expiry. Unconditionally safe
// to repeat.
func (s *Scheduler) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpiredNotifications(ctx, s.now())
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "purge notifications", err)
	}
	if n > 0 {
		log.Printf("[SCHED] purged %d expired notifications", n)
	}
	return n, nil
}

// Start launches both recurring occurrences. They stop when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx, s.reminderAt, func(ctx context.Context) {
		if _, err := s.RunReminders(ctx, false); err != nil {
			log.Printf("[SCHED] reminder run failed: %v", err)
		}
	})
	go s.loop(ctx, s.purgeAt, func(ctx context.Context) {
		if _, err := s.PurgeExpired(ctx); err != nil {
			log.Printf("[SCHED] purge failed: %v", err)
		}
	})
}

func (s *Scheduler) loop(ctx context.Context, at string, f func(ctx context.Context)) {
	for {
		next := nextOccurrence(s.now().In(s.loc), at)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		f(runCtx)
		cancel()
	}
}

// nextOccurrence finds the next "HH:MM" wall-clock time in now's location.
func nextOccurrence(now time.Time, at string) time.Time {
	hh, mm := 17, 0
	if parts := strings.SplitN(at, ":", 2); len(parts) == 2 {
		if h, err := strconv.Atoi(parts[0]); err == nil {
			if m, err := strconv.Atoi(parts[1]); err == nil {
				hh, mm = h, m
			}
		}
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
