package cache

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	redisclient "github.com/yungbote/vidlens-backend/internal/clients/redis"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

func setupTwoTier(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	t.Setenv("REDIS_HOST", mr.Host())
	t.Setenv("REDIS_PORT", mr.Port())
	t.Setenv("REDIS_PASSWORD", "")

	log := logger.NewNop()
	remote := redisclient.NewRemoteCache(log)
	if !remote.Enabled() {
		t.Fatalf("remote tier should be enabled against miniredis")
	}
	t.Cleanup(func() { _ = remote.Close() })

	return mr, NewManager(log, NewLRU(1024*1024, 100), remote)
}

func TestManagerSetWritesBothTiers(t *testing.T) {
	mr, m := setupTwoTier(t)
	ctx := context.Background()

	m.Set(ctx, "analysis:u1", []byte("payload"), time.Minute)

	if got, ok := m.local.Get("analysis:u1"); !ok || !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("local tier missing value")
	}
	stored, err := mr.Get("analysis:u1")
	if err != nil {
		t.Fatalf("remote tier missing value: %v", err)
	}
	if stored != "payload" {
		t.Fatalf("remote value = %q", stored)
	}
}

func TestManagerRemoteHitPromotesLocally(t *testing.T) {
	mr, m := setupTwoTier(t)
	ctx := context.Background()

	if err := mr.Set("metadata:u2", "remote-only"); err != nil {
		t.Fatalf("seed miniredis: %v", err)
	}

	got, ok := m.Get(ctx, "metadata:u2")
	if !ok {
		t.Fatalf("expected remote hit")
	}
	if string(got) != "remote-only" {
		t.Fatalf("unexpected value: %q", got)
	}
	// the hit must now be answerable without the network tier
	if _, ok := m.local.Get("metadata:u2"); !ok {
		t.Fatalf("remote hit was not promoted into the local tier")
	}
}

func TestManagerDeleteRemovesBothTiers(t *testing.T) {
	mr, m := setupTwoTier(t)
	ctx := context.Background()

	m.Set(ctx, "scenes:v1", []byte("x"), time.Minute)
	m.Delete(ctx, "scenes:v1")

	if _, ok := m.Get(ctx, "scenes:v1"); ok {
		t.Fatalf("value survived delete")
	}
	if mr.Exists("scenes:v1") {
		t.Fatalf("remote tier still holds deleted key")
	}
}

func TestManagerRemoteTTLExpires(t *testing.T) {
	mr, m := setupTwoTier(t)
	ctx := context.Background()

	m.Set(ctx, "analysis:u3", []byte("short"), 10*time.Second)
	m.local.Purge()
	mr.FastForward(11 * time.Second)

	if _, ok := m.Get(ctx, "analysis:u3"); ok {
		t.Fatalf("remote entry should have expired")
	}
}

func TestManagerDegradesWithoutRemote(t *testing.T) {
	t.Setenv("REDIS_HOST", "")
	log := logger.NewNop()

	remote := redisclient.NewRemoteCache(log)
	if remote.Enabled() {
		t.Fatalf("remote tier should be disabled without REDIS_HOST")
	}
	m := NewManager(log, NewLRU(1024, 10), remote)
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Minute)
	if got, ok := m.Get(ctx, "k"); !ok || string(got) != "v" {
		t.Fatalf("local tier should still serve: %q %v", got, ok)
	}
}

func TestKeyBuildersShortIdentifiersStayRaw(t *testing.T) {
	url := "https://www.youtube.com/watch?v=abc12345678"
	if got := AnalysisKey(url); got != "analysis:"+url {
		t.Fatalf("analysis key = %q", got)
	}
	if got := MetadataKey(url); got != "metadata:"+url {
		t.Fatalf("metadata key = %q", got)
	}
	if got := ScenesKey("abc12345678"); got != "scenes:abc12345678" {
		t.Fatalf("scenes key = %q", got)
	}
}

func TestKeyBuildersHashLongIdentifiers(t *testing.T) {
	long := "https://www.youtube.com/watch?v=" + strings.Repeat("x", 120)
	key := AnalysisKey(long)

	if !strings.HasPrefix(key, "analysis:") {
		t.Fatalf("prefix lost: %q", key)
	}
	id := strings.TrimPrefix(key, "analysis:")
	if len(id) != 32 {
		t.Fatalf("hashed identifier should be 32 hex chars, got %d", len(id))
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non-hex rune %q in %q", r, id)
		}
	}
	// deterministic
	if AnalysisKey(long) != key {
		t.Fatalf("hashing must be stable")
	}
}
