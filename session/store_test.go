package session

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, "sess", false, false, 0), mr
}

func testSession(id, userID string, hash [32]byte) *Session {
	now := time.Now().Unix()
	return &Session{
		SessionID:   id,
		UserID:      userID,
		Status:      0,
		RefreshHash: hash,
		CreatedAt:   now,
		ExpiresAt:   now + 3600,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))
	sess := testSession("s1", "u1", hash)

	if err := store.Save(context.Background(), sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.SessionID != "s1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.RefreshHash != hash {
		t.Fatal("refresh hash did not round-trip")
	}
}

func TestGetMissingSession(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get(context.Background(), "nope", 0); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestDeleteRemovesSessionAndIndex(t *testing.T) {
	store, mr := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))
	sess := testSession("s1", "u1", hash)

	if err := store.Save(context.Background(), sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(context.Background(), "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(context.Background(), "s1", 0); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if mr.Exists("sess:s1") {
		t.Fatal("expected session key removed")
	}

	ids, err := store.ActiveSessionIDs(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

func TestDeleteMissingSessionIsNoOp(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.Delete(context.Background(), "ghost"); err != nil {
		t.Fatalf("expected nil for absent session, got %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := store.Save(context.Background(), testSession(id, "u1", hash), time.Hour); err != nil {
			t.Fatalf("Save(%s) failed: %v", id, err)
		}
	}
	if err := store.Save(context.Background(), testSession("other", "u2", hash), time.Hour); err != nil {
		t.Fatalf("Save(other) failed: %v", err)
	}

	if err := store.DeleteAllForUser(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteAllForUser failed: %v", err)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := store.Get(context.Background(), id, 0); !errors.Is(err, redis.Nil) {
			t.Fatalf("expected %s gone, got %v", id, err)
		}
	}

	// Another user's session is untouched.
	if _, err := store.Get(context.Background(), "other", 0); err != nil {
		t.Fatalf("expected u2 session to survive, got %v", err)
	}
}

func TestRotateRefreshHashSuccess(t *testing.T) {
	store, _ := newTestStore(t)
	oldHash := sha256.Sum256([]byte("secret-1"))
	newHash := sha256.Sum256([]byte("secret-2"))

	if err := store.Save(context.Background(), testSession("s1", "u1", oldHash), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sess, err := store.RotateRefreshHash(context.Background(), "s1", oldHash, newHash)
	if err != nil {
		t.Fatalf("RotateRefreshHash failed: %v", err)
	}
	if sess.RefreshHash != newHash {
		t.Fatal("expected rotated hash in returned session")
	}
	if sess.UserID != "u1" {
		t.Fatalf("unexpected user: %s", sess.UserID)
	}

	stored, err := store.GetReadOnly(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetReadOnly failed: %v", err)
	}
	if stored.RefreshHash != newHash {
		t.Fatal("expected rotated hash at rest")
	}
}

func TestRotateRefreshHashMismatchDeletesSession(t *testing.T) {
	store, _ := newTestStore(t)
	oldHash := sha256.Sum256([]byte("secret-1"))
	newHash := sha256.Sum256([]byte("secret-2"))
	wrongHash := sha256.Sum256([]byte("stolen"))

	if err := store.Save(context.Background(), testSession("s1", "u1", oldHash), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.RotateRefreshHash(context.Background(), "s1", wrongHash, newHash); !errors.Is(err, ErrRefreshHashMismatch) {
		t.Fatalf("expected ErrRefreshHashMismatch, got %v", err)
	}

	// The mismatch is treated as theft evidence: the session must be gone.
	if _, err := store.GetReadOnly(context.Background(), "s1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected session deleted after mismatch, got %v", err)
	}
}

func TestRotateRefreshHashNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))

	_, err := store.RotateRefreshHash(context.Background(), "ghost", hash, hash)
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
	if !errors.Is(err, ErrRefreshSessionNotFound) {
		t.Fatalf("expected ErrRefreshSessionNotFound, got %v", err)
	}
}

func TestRotateRefreshHashExpiredSession(t *testing.T) {
	store, _ := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))

	sess := testSession("s1", "u1", hash)
	sess.ExpiresAt = time.Now().Unix() - 10
	if err := store.Save(context.Background(), sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	_, err := store.RotateRefreshHash(context.Background(), "s1", hash, hash)
	if !errors.Is(err, redis.Nil) || !errors.Is(err, ErrRefreshSessionExpired) {
		t.Fatalf("expected expired-session error, got %v", err)
	}
}

func TestRotateRefreshHashCorruptBlob(t *testing.T) {
	store, mr := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))

	if err := mr.Set("sess:s1", "garbage"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	mr.SetTTL("sess:s1", time.Hour)

	_, err := store.RotateRefreshHash(context.Background(), "s1", hash, hash)
	if !errors.Is(err, ErrRefreshSessionCorrupt) {
		t.Fatalf("expected corrupt-blob error, got %v", err)
	}
}

func TestUpdatePreservesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))
	sess := testSession("s1", "u1", hash)

	if err := store.Save(context.Background(), sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sess.MFAVerifiedAt = time.Now().Unix()
	sess.MFAExpiresAt = time.Now().Add(time.Hour).Unix()
	if err := store.Update(context.Background(), sess); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetReadOnly(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetReadOnly failed: %v", err)
	}
	if !got.MFAVerified() {
		t.Fatal("expected MFA stamp to persist")
	}
	if ttl := mr.TTL("sess:s1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected TTL preserved, got %v", ttl)
	}
}

func TestUpdateMissingSession(t *testing.T) {
	store, _ := newTestStore(t)
	hash := sha256.Sum256([]byte("secret-1"))

	if err := store.Update(context.Background(), testSession("ghost", "u1", hash)); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestSlidingGetExtendsTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, "sess", true, false, 0)

	hash := sha256.Sum256([]byte("secret-1"))
	sess := testSession("s1", "u1", hash)

	if err := store.Save(context.Background(), sess, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(context.Background(), "s1", 0); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// The window slid out to the remaining absolute lifetime.
	if ttl := mr.TTL("sess:s1"); ttl <= time.Minute {
		t.Fatalf("expected extended TTL, got %v", ttl)
	}
}

func TestTrackReplayAnomalyCounts(t *testing.T) {
	store, mr := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := store.TrackReplayAnomaly(context.Background(), "s1", time.Hour); err != nil {
			t.Fatalf("TrackReplayAnomaly failed: %v", err)
		}
	}

	count, err := mr.Get("sreplay:s1")
	if err != nil {
		t.Fatalf("expected replay key: %v", err)
	}
	if count != "3" {
		t.Fatalf("expected count 3, got %s", count)
	}
	if ttl := mr.TTL("sreplay:s1"); ttl <= 0 {
		t.Fatalf("expected TTL on replay key, got %v", ttl)
	}
}

func TestEncodeDecodeRejectsCorruptPayload(t *testing.T) {
	if _, err := Decode([]byte{}); err == nil {
		t.Fatal("expected empty payload rejected")
	}
	if _, err := Decode([]byte{9, 2, 'u', '1'}); err == nil {
		t.Fatal("expected unknown version rejected")
	}

	hash := sha256.Sum256([]byte("secret-1"))
	data, err := Encode(testSession("s1", "u1", hash))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Fatal("expected truncated payload rejected")
	}
}
