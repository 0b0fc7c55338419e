package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	redisclient "github.com/yungbote/vidlens-backend/internal/clients/redis"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

// TTLs per key family. Metadata lives longest because it almost never
// changes; analysis results turn over daily so reruns pick up prompt or
// model changes.
const (
	AnalysisTTL = 24 * time.Hour
	MetadataTTL = 168 * time.Hour
	ScenesTTL   = 72 * time.Hour

	// PromotionTTL is the short local lifetime given to values promoted
	// from the remote tier.
	PromotionTTL = 5 * time.Minute
)

// maxIdentifierLen is the longest raw identifier embedded in a key before
// it is replaced by a hash.
const maxIdentifierLen = 100

// Manager is the two-tier cache: a local LRU in front of an optional remote
// tier. The local tier answers first; remote hits are promoted locally with
// PromotionTTL. Writes and deletes go to both tiers. Failures in either
// tier degrade to a miss and never propagate.
type Manager struct {
	log    *logger.Logger
	local  *LRU
	remote redisclient.RemoteCache
}

func NewManager(logg *logger.Logger, local *LRU, remote redisclient.RemoteCache) *Manager {
	return &Manager{
		log:    logg.With("service", "CacheManager"),
		local:  local,
		remote: remote,
	}
}

func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := m.local.Get(key); ok {
		return value, true
	}
	if m.remote == nil || !m.remote.Enabled() {
		return nil, false
	}
	value, ok := m.remote.Get(ctx, key)
	if !ok {
		return nil, false
	}
	m.local.Set(key, value, PromotionTTL)
	return value, true
}

func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	m.local.Set(key, value, ttl)
	if m.remote != nil {
		m.remote.Set(ctx, key, value, ttl)
	}
}

func (m *Manager) Delete(ctx context.Context, key string) {
	m.local.Delete(key)
	if m.remote != nil {
		m.remote.Delete(ctx, key)
	}
}

func (m *Manager) Stats() Stats { return m.local.Stats() }

// AnalysisKey caches a finished ParsedAnalysis per canonical URL.
func AnalysisKey(url string) string { return "analysis:" + hashIfLong(url) }

// MetadataKey caches fetched metadata per canonical URL.
func MetadataKey(url string) string { return "metadata:" + hashIfLong(url) }

// ScenesKey caches extraction output per platform video id.
func ScenesKey(videoID string) string { return "scenes:" + hashIfLong(videoID) }

// hashIfLong keeps keys bounded: identifiers over maxIdentifierLen chars
// are replaced by the first 32 hex chars of their SHA-256.
func hashIfLong(id string) string {
	if len(id) <= maxIdentifierLen {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:32]
}
