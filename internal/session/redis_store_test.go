package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"inkwell/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	sessions, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return sessions, s
}

func testView(userID string) View {
	return View{
		UserID:       userID,
		Name:         "Alice",
		Username:     "alice",
		Email:        "alice@x.com",
		Profile:      store.Profile{Friends: []string{"usr_friend"}},
		IsRegistered: true,
		IsLoggedIn:   true,
		AuthToken:    "sess-token",
	}
}

func TestCreateAndGet(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	if err := sessions.Create(ctx, "sess-1", testView("usr_1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	view, err := sessions.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if view.UserID != "usr_1" {
		t.Errorf("expected user usr_1, got %s", view.UserID)
	}
	if len(view.Profile.Friends) != 1 || view.Profile.Friends[0] != "usr_friend" {
		t.Errorf("expected profile to round trip, got %+v", view.Profile)
	}
}

func TestGetExpiredSession(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	if err := sessions.Create(ctx, "sess-exp", testView("usr_2")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s.FastForward(2 * time.Hour)

	if _, err := sessions.Get(ctx, "sess-exp"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for expired session, got %v", err)
	}
}

func TestUpdateMissingSession(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	if err := sessions.Update(ctx, "nope", testView("usr_3")); err != ErrNotFound {
		t.Errorf("expected ErrNotFound updating missing session, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	if err := sessions.Create(ctx, "sess-del", testView("usr_4")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := sessions.Delete(ctx, "sess-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := sessions.Get(ctx, "sess-del"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPasswordUpdatedMarkerConsumedOnce(t *testing.T) {
	sessions, s := setupTestRedis(t)
	defer sessions.Close()
	defer s.Close()

	ctx := context.Background()
	if err := sessions.MarkPasswordUpdated(ctx, "sess-pw"); err != nil {
		t.Fatalf("MarkPasswordUpdated failed: %v", err)
	}

	updated, err := sessions.ConsumePasswordUpdated(ctx, "sess-pw")
	if err != nil {
		t.Fatalf("ConsumePasswordUpdated failed: %v", err)
	}
	if !updated {
		t.Fatal("expected marker on first consume")
	}

	updated, err = sessions.ConsumePasswordUpdated(ctx, "sess-pw")
	if err != nil {
		t.Fatalf("ConsumePasswordUpdated failed: %v", err)
	}
	if updated {
		t.Fatal("expected marker to be cleared after first consume")
	}
}
