package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yungbote/vidlens-backend/internal/pkg/errors"
	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionProcessing SessionStatus = "processing"
	SessionIdle       SessionStatus = "idle"
	SessionCompleted  SessionStatus = "completed"
	SessionExpired    SessionStatus = "expired"
)

// UserSession is one user's admission record plus its workspace handle.
type UserSession struct {
	SessionID    string
	UserID       string
	WorkspaceDir string
	CreatedAt    time.Time
	LastActive   time.Time
	ActiveTasks  int
	Status       SessionStatus
}

// SessionManager hands out isolated workspaces and enforces the user and
// task caps. Sessions idle past the timeout with no running tasks are
// reclaimed opportunistically on the next admission.
type SessionManager interface {
	GetOrCreateSession(sessionID string) (*UserSession, error)
	StartTask(ctx context.Context, sessionID, taskName string) error
	EndTask(sessionID, taskName string)
	MarkPipelineCompleted(sessionID string)
	GetWorkspacePath(sessionID, subdir string) (string, error)
	CleanupSession(sessionID string)
	CleanupAll()
}

type sessionManager struct {
	log           *logger.Logger
	monitor       ResourceMonitor
	workspaceRoot string
	maxUsers      int
	maxTasks      int
	idleTimeout   time.Duration

	mu       sync.Mutex
	sessions map[string]*UserSession
	now      func() time.Time
}

func NewSessionManager(log *logger.Logger, monitor ResourceMonitor, workspaceRoot string, maxUsers, maxTasks int, idleTimeout time.Duration) SessionManager {
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		root = workspaceRoot
	}
	return &sessionManager{
		log:           log.With("service", "SessionManager"),
		monitor:       monitor,
		workspaceRoot: root,
		maxUsers:      maxUsers,
		maxTasks:      maxTasks,
		idleTimeout:   idleTimeout,
		sessions:      make(map[string]*UserSession),
		now:           time.Now,
	}
}

// GetOrCreateSession returns the existing session for a non-empty known id,
// otherwise admits a new one. Admission first reclaims expired sessions and
// fails with CAPACITY_EXCEEDED when the user cap still holds.
func (m *sessionManager) GetOrCreateSession(sessionID string) (*UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if s, ok := m.sessions[sessionID]; ok {
			s.LastActive = m.now()
			if s.ActiveTasks == 0 {
				s.Status = SessionActive
			}
			out := *s
			return &out, nil
		}
	}

	m.reclaimExpiredLocked()
	if len(m.sessions) >= m.maxUsers {
		m.log.Warn("Session admission refused", "sessions", len(m.sessions), "max_users", m.maxUsers)
		return nil, apperrors.Ef(apperrors.KindCapacityExceeded, "user capacity reached (%d sessions)", m.maxUsers)
	}

	id := sessionID
	if id == "" {
		id = newSessionID()
	}
	dir := filepath.Join(m.workspaceRoot, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session workspace: %w", err)
	}

	now := m.now()
	s := &UserSession{
		SessionID:    id,
		UserID:       hashUserID(id),
		WorkspaceDir: dir,
		CreatedAt:    now,
		LastActive:   now,
		Status:       SessionActive,
	}
	m.sessions[id] = s
	m.log.Info("Session created", "session_id", id, "workspace", dir, "sessions", len(m.sessions))

	out := *s
	return &out, nil
}

// StartTask admits one unit of work. It fails with CAPACITY_EXCEEDED when
// systemwide active tasks are at the limit and with RESOURCE_PRESSURE when
// the monitor denies. Neither failure is terminal for the caller.
func (m *sessionManager) StartTask(ctx context.Context, sessionID, taskName string) error {
	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown session %q", sessionID)
	}
	if m.totalActiveLocked() >= m.maxTasks {
		m.mu.Unlock()
		return apperrors.Ef(apperrors.KindCapacityExceeded, "concurrent tasks at limit (%d)", m.maxTasks)
	}
	m.mu.Unlock()

	// The CPU sample blocks for its window, so never hold the lock across it.
	if !m.monitor.CanStartTask(ctx) {
		return apperrors.E(apperrors.KindResourcePressure, "host under resource pressure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}
	if m.totalActiveLocked() >= m.maxTasks {
		return apperrors.Ef(apperrors.KindCapacityExceeded, "concurrent tasks at limit (%d)", m.maxTasks)
	}
	s.ActiveTasks++
	s.Status = SessionProcessing
	s.LastActive = m.now()
	m.log.Info("Task started", "session_id", sessionID, "task", taskName, "active_tasks", s.ActiveTasks)
	return nil
}

func (m *sessionManager) EndTask(sessionID, taskName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	if s.ActiveTasks > 0 {
		s.ActiveTasks--
	}
	if s.ActiveTasks == 0 && s.Status == SessionProcessing {
		s.Status = SessionIdle
	}
	s.LastActive = m.now()
	m.log.Info("Task ended", "session_id", sessionID, "task", taskName, "active_tasks", s.ActiveTasks)
}

func (m *sessionManager) MarkPipelineCompleted(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	s.Status = SessionCompleted
	s.LastActive = m.now()
}

// GetWorkspacePath resolves a path inside the session workspace, creating
// the subdirectory when absent. An empty subdir returns the workspace root.
func (m *sessionManager) GetWorkspacePath(sessionID, subdir string) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("unknown session %q", sessionID)
	}
	dir := s.WorkspaceDir
	m.mu.Unlock()

	path := dir
	if subdir != "" {
		path = filepath.Join(dir, subdir)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create workspace subdir: %w", err)
	}
	return path, nil
}

func (m *sessionManager) CleanupSession(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := os.RemoveAll(s.WorkspaceDir); err != nil {
		m.log.Warn("Workspace removal failed", "session_id", sessionID, "error", err)
	}
	m.log.Info("Session cleaned up", "session_id", sessionID)
}

func (m *sessionManager) CleanupAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.CleanupSession(id)
	}
}

func (m *sessionManager) totalActiveLocked() int {
	total := 0
	for _, s := range m.sessions {
		total += s.ActiveTasks
	}
	return total
}

func (m *sessionManager) reclaimExpiredLocked() {
	now := m.now()
	for id, s := range m.sessions {
		if s.ActiveTasks != 0 || now.Sub(s.LastActive) <= m.idleTimeout {
			continue
		}
		s.Status = SessionExpired
		delete(m.sessions, id)
		if err := os.RemoveAll(s.WorkspaceDir); err != nil {
			m.log.Warn("Expired workspace removal failed", "session_id", id, "error", err)
		}
		m.log.Info("Session expired", "session_id", id, "idle", now.Sub(s.LastActive).String())
	}
}

func newSessionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func hashUserID(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:8])
}
