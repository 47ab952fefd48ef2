package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"keytrack/apperr"
	"keytrack/models"
	"keytrack/realtime"
)

var (
	alice = models.User{ID: "11111111-1111-1111-1111-111111111111", Email: "alice@campus.edu", DisplayName: "Alice Chen", Role: models.RoleFaculty, IsActive: true, Verified: true}
	bob   = models.User{ID: "22222222-2222-2222-2222-222222222222", Email: "bob@campus.edu", DisplayName: "Bob Singh", Role: models.RoleSecurity, IsActive: true, Verified: true}
	carol = models.User{ID: "33333333-3333-3333-3333-333333333333", Email: "carol@campus.edu", DisplayName: "Carol Diaz", Role: models.RoleFaculty, IsActive: true, Verified: true}
	eve   = models.User{ID: "66666666-6666-6666-6666-666666666666", Email: "eve@campus.edu", DisplayName: "Eve Moran", Role: models.RoleAdmin, IsActive: true, Verified: true}
)

func actorFor(u models.User) Actor {
	return Actor{ID: u.ID, Name: u.DisplayName, Email: u.Email, Role: u.Role, IP: "10.0.0.1"}
}

func TestTakeKeyConcurrentSingleWinner(t *testing.T) {
	f := newFixture(alice, bob, carol)
	f.keys.add(models.Key{ID: "k1", KeyNumber: "A-101", Name: "Lab 101"})

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.TakeKey(context.Background(), "A-101", actorFor(alice))
		}(i)
	}
	wg.Wait()
	f.svc.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if apperr.KindOf(err) != apperr.KindConflict {
			t.Errorf("loser got kind %v, want conflict: %v", apperr.KindOf(err), err)
		}
	}
	if wins != 1 {
		t.Fatalf("got %d winners, want exactly 1", wins)
	}

	k := f.keys.get("A-101")
	if !k.Held() || *k.HolderID != alice.ID {
		t.Fatalf("key not held by winner: status=%s holder=%v", k.Status, k.HolderID)
	}
	if got := f.audit.byAction(models.AuditKeyTaken); len(got) != 1 {
		t.Fatalf("got %d key_taken audit entries, want 1", len(got))
	}
}

func TestTakeReturnRoundTrip(t *testing.T) {
	f := newFixture(alice)
	f.keys.add(models.Key{ID: "k1", KeyNumber: "A-101", Name: "Lab 101", Location: "Building A"})

	taken, err := f.svc.TakeKey(context.Background(), "A-101", actorFor(alice))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if taken.Status != models.KeyUnavailable || taken.TakenAt == nil {
		t.Fatalf("take did not flip the key: %+v", taken)
	}

	returned, err := f.svc.ReturnKey(context.Background(), "A-101", actorFor(alice))
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	f.svc.Wait()

	if returned.Status != models.KeyAvailable || returned.HolderID != nil {
		t.Fatalf("return did not release the key: %+v", returned)
	}
	if returned.ReturnedAt == nil || returned.ReturnedAt.Before(*taken.TakenAt) {
		t.Fatalf("returnedAt %v predates takenAt %v", returned.ReturnedAt, taken.TakenAt)
	}

	if got := f.audit.byAction(models.AuditKeyReturned); len(got) != 1 {
		t.Fatalf("got %d key_returned audit entries, want 1", len(got))
	}
	if got := f.notifs.forUser(alice.ID); len(got) != 2 {
		t.Fatalf("got %d notifications for the holder, want taken + returned", len(got))
	}
	if evs := f.fanout.events(realtime.GlobalRoom); len(evs) != 2 {
		t.Fatalf("got %d global events, want key_taken + key_returned", len(evs))
	}
}

func TestDoubleReturnConflicts(t *testing.T) {
	f := newFixture(alice)
	f.keys.add(models.Key{ID: "k1", KeyNumber: "A-101", Name: "Lab 101"})

	if _, err := f.svc.TakeKey(context.Background(), "A-101", actorFor(alice)); err != nil {
		t.Fatalf("take: %v", err)
	}
	if _, err := f.svc.ReturnKey(context.Background(), "A-101", actorFor(alice)); err != nil {
		t.Fatalf("first return: %v", err)
	}
	_, err := f.svc.ReturnKey(context.Background(), "A-101", actorFor(alice))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("second return: got %v, want conflict", err)
	}
	f.svc.Wait()
}

func TestReturnByNonHolderForbidden(t *testing.T) {
	f := newFixture(alice, carol)
	f.keys.add(models.Key{ID: "k1", KeyNumber: "A-101", Name: "Lab 101"})

	if _, err := f.svc.TakeKey(context.Background(), "A-101", actorFor(alice)); err != nil {
		t.Fatalf("take: %v", err)
	}
	_, err := f.svc.ReturnKey(context.Background(), "A-101", actorFor(carol))
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("got %v, want forbidden", err)
	}
	f.svc.Wait()

	k := f.keys.get("A-101")
	if !k.Held() || *k.HolderID != alice.ID {
		t.Fatalf("failed return mutated the key: %+v", k)
	}
}

func TestCollectiveReturnAttribution(t *testing.T) {
	f := newFixture(alice, bob)
	f.keys.add(models.Key{ID: "k1", KeyNumber: "A-101", Name: "Lab 101"})

	if _, err := f.svc.TakeKey(context.Background(), "A-101", actorFor(alice)); err != nil {
		t.Fatalf("take: %v", err)
	}
	f.svc.Wait()

	if _, err := f.svc.ReturnKey(context.Background(), "A-101", actorFor(bob)); err != nil {
		t.Fatalf("collective return: %v", err)
	}
	f.svc.Wait()

	entries := f.audit.byAction(models.AuditKeyCollectiveReturn)
	if len(entries) != 1 {
		t.Fatalf("got %d collective return entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ActorID != bob.ID {
		t.Errorf("actor = %s, want the security user", e.ActorID)
	}
	if e.OriginalHolderID == nil || *e.OriginalHolderID != alice.ID {
		t.Errorf("original holder = %v, want the faculty holder", e.OriginalHolderID)
	}
	if len(f.audit.byAction(models.AuditKeyReturned)) != 0 {
		t.Error("collective return also logged a plain return")
	}

	// only the original holder is told, once
	returned := f.notifs.byType(models.NotifReturned)
	if len(returned) != 1 || returned[0].UserID != alice.ID {
		t.Fatalf("returned notifications = %+v, want exactly one to the holder", returned)
	}
	if evs := f.fanout.events(realtime.UserRoom(bob.ID)); len(evs) == 0 {
		t.Error("returning security user saw no event")
	}
}

func TestTakeUnknownKeyNotFound(t *testing.T) {
	f := newFixture(alice)
	_, err := f.svc.TakeKey(context.Background(), "NOPE", actorFor(alice))
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestSideEffectFailureKeepsTransition(t *testing.T) {
	f := newFixture(alice)
	f.keys.add(models.Key{ID: "k1", KeyNumber: "A-101", Name: "Lab 101"})

	f.audit.err = errors.New("audit insert failed")
	f.notifs.createErr = errors.New("notification insert failed")

	k, err := f.svc.TakeKey(context.Background(), "A-101", actorFor(alice))
	if err != nil {
		t.Fatalf("take failed on a side-effect error: %v", err)
	}
	f.svc.Wait()
	if !k.Held() {
		t.Fatalf("take did not flip the key: %+v", k)
	}

	k, err = f.svc.ReturnKey(context.Background(), "A-101", actorFor(alice))
	if err != nil {
		t.Fatalf("return failed on a side-effect error: %v", err)
	}
	f.svc.Wait()
	if k.Status != models.KeyAvailable {
		t.Fatalf("return did not release the key: %+v", k)
	}

	if len(f.audit.entries) != 0 || len(f.notifs.created) != 0 {
		t.Errorf("failing stores recorded anyway: audit=%d notifs=%d", len(f.audit.entries), len(f.notifs.created))
	}
}

// a security-role holder keeps that role in the notification addressed to
// them, so it reaches the security room
func TestCollectiveReturnUsesHolderRoleSnapshot(t *testing.T) {
	f := newFixture(bob, eve)
	f.keys.add(models.Key{ID: "k1", KeyNumber: "A-101", Name: "Lab 101"})

	if _, err := f.svc.TakeKey(context.Background(), "A-101", actorFor(bob)); err != nil {
		t.Fatalf("take: %v", err)
	}
	f.svc.Wait()
	if k := f.keys.get("A-101"); k.HolderRole == nil || *k.HolderRole != models.RoleSecurity {
		t.Fatalf("holder role not snapshotted: %+v", k)
	}

	if _, err := f.svc.ReturnKey(context.Background(), "A-101", actorFor(eve)); err != nil {
		t.Fatalf("collective return: %v", err)
	}
	f.svc.Wait()

	returned := f.notifs.byType(models.NotifReturned)
	if len(returned) != 1 {
		t.Fatalf("got %d returned notifications, want 1", len(returned))
	}
	if returned[0].UserID != bob.ID || returned[0].Role != models.RoleSecurity {
		t.Errorf("notification = user %s role %q, want the holder with the security role", returned[0].UserID, returned[0].Role)
	}

	var seen bool
	for _, ev := range f.fanout.events(realtime.RoleRoom(models.RoleSecurity)) {
		if ev.Type == "notification" {
			seen = true
		}
	}
	if !seen {
		t.Error("security room never saw the holder's notification")
	}
}
