// Package session implements the shared, TTL-evicted registry of active
// modeling sessions. The store owns all cross-request mutable state: the
// session map, the run-id reverse index and the cached batch prediction
// results. A single mutex guards map mutation only; heavy computation
// happens outside the lock and mutated frames are swapped in atomically.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/common/logger"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/observability/metrics"
	"github.com/tabularml/workbench/pkg/preprocess"
	"github.com/tabularml/workbench/pkg/train"
)

// OutlierState caches the result of the most recent outlier detection so a
// later apply step can consume it. Any frame replacement invalidates it.
type OutlierState struct {
	Method    string
	Mask      []bool
	Columns   []string
	Threshold float64
}

type session struct {
	id           string
	createdAt    time.Time
	lastAccessed time.Time
	frame        *dataset.Frame
	target       string
	outliers     *OutlierState
	artifact     *preprocess.Artifact
	runs         map[string]*train.Run
	latestRun    string
	batchResult  []byte
}

type Store struct {
	mu          sync.Mutex
	sessions    map[string]*session
	runIndex    map[string]string
	maxSessions int
	ttl         time.Duration
}

// New creates an empty store. maxSessions bounds the number of live
// sessions (least-recently-accessed evicted first); ttl bounds idle time.
func New(maxSessions int, ttl time.Duration) *Store {
	if maxSessions <= 0 {
		maxSessions = 64
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		sessions:    make(map[string]*session),
		runIndex:    make(map[string]string),
		maxSessions: maxSessions,
		ttl:         ttl,
	}
}

// Create deep-copies the frame into a new session and returns its id. When
// the store is at capacity the least-recently-accessed session is evicted.
func (s *Store) Create(frame *dataset.Frame) (string, error) {
	if frame == nil || frame.Rows() == 0 {
		return "", apperr.New(apperr.KindEmptyDataset, "dataset has no rows")
	}
	copied := frame.Copy()
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(now)
	for len(s.sessions) >= s.maxSessions {
		if !s.evictOldestLocked() {
			return "", apperr.New(apperr.KindTooManySessions, "session capacity %d exhausted", s.maxSessions)
		}
	}
	s.sessions[id] = &session{
		id:           id,
		createdAt:    now,
		lastAccessed: now,
		frame:        copied,
		runs:         make(map[string]*train.Run),
	}
	return id, nil
}

// Frame returns the session's current frame, refreshing its idle timer.
// The frame is treated as immutable; mutations go through ReplaceFrame.
func (s *Store) Frame(id string) (*dataset.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	return sess.frame, nil
}

// ReplaceFrame swaps in a new frame value. The cached outlier mask is
// invalidated: it was computed against the previous frame.
func (s *Store) ReplaceFrame(id string, frame *dataset.Frame) error {
	if frame == nil || frame.Rows() == 0 {
		return apperr.New(apperr.KindEmptyDataset, "operation would leave the dataset empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	sess.frame = frame
	sess.outliers = nil
	return nil
}

func (s *Store) SetOutlierState(id string, state *OutlierState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	sess.outliers = state
	return nil
}

// OutlierState returns the cached mask, or NoMaskComputed when detection
// has not run since the last reset or frame replacement.
func (s *Store) OutlierState(id string) (*OutlierState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	if sess.outliers == nil {
		return nil, apperr.New(apperr.KindNoMaskComputed, "no outlier mask computed for this dataset")
	}
	return sess.outliers, nil
}

func (s *Store) ClearOutlierState(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	sess.outliers = nil
	return nil
}

// SetArtifact replaces the session's preprocessing artifact wholesale.
func (s *Store) SetArtifact(id, target string, artifact *preprocess.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	sess.target = target
	sess.artifact = artifact
	return nil
}

// Artifact returns the fitted preprocessing artifact, or
// PreprocessingRequired when preprocessing has not been run.
func (s *Store) Artifact(id string) (*preprocess.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	if sess.artifact == nil {
		return nil, apperr.New(apperr.KindPreprocessingRequired, "preprocessing must be run before training")
	}
	return sess.artifact, nil
}

// AddRun stores a completed run under the session and registers the
// run-id reverse index entry.
func (s *Store) AddRun(id string, run *train.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	sess.runs[run.ID] = run
	sess.latestRun = run.ID
	s.runIndex[run.ID] = id
	return nil
}

// LatestRun returns the most recent run for the session, or ModelNotReady
// when no training has completed.
func (s *Store) LatestRun(id string) (*train.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	if sess.latestRun == "" {
		return nil, apperr.New(apperr.KindModelNotReady, "no trained model for this session")
	}
	return sess.runs[sess.latestRun], nil
}

// RunByID resolves a run without the caller re-supplying the session id.
func (s *Store) RunByID(runID string) (string, *train.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID, ok := s.runIndex[runID]
	if !ok {
		return "", nil, apperr.New(apperr.KindRunNotFound, "run %q not found", runID)
	}
	sess, err := s.getLocked(sessionID)
	if err != nil {
		return "", nil, apperr.New(apperr.KindRunNotFound, "run %q not found", runID)
	}
	run, ok := sess.runs[runID]
	if !ok {
		return "", nil, apperr.New(apperr.KindRunNotFound, "run %q not found", runID)
	}
	return sessionID, run, nil
}

// SetBatchResult caches the serialized batch prediction CSV for download.
func (s *Store) SetBatchResult(id string, csv []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return err
	}
	sess.batchResult = csv
	return nil
}

func (s *Store) BatchResult(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	if sess.batchResult == nil {
		return nil, apperr.New(apperr.KindInvalidRequest, "no batch prediction result cached for this session")
	}
	return sess.batchResult, nil
}

// Target returns the target column chosen at preprocessing time.
func (s *Store) Target(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getLocked(id)
	if err != nil {
		return "", err
	}
	return sess.target, nil
}

// Delete drops the session and its run index entries.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Teardown clears all sessions and indexes.
func (s *Store) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*session)
	s.runIndex = make(map[string]string)
}

// Len reports the number of live sessions (expired ones included until the
// next access purges them).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) getLocked(id string) (*session, error) {
	s.purgeLocked(time.Now())
	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.KindSessionNotFound, "session expired or not found")
	}
	sess.lastAccessed = time.Now()
	return sess, nil
}

func (s *Store) purgeLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.lastAccessed) > s.ttl {
			s.removeLocked(id)
			metrics.IncSessionExpired()
		}
	}
}

func (s *Store) evictOldestLocked() bool {
	var oldest string
	var oldestTime time.Time
	for id, sess := range s.sessions {
		if oldest == "" || sess.lastAccessed.Before(oldestTime) {
			oldest = id
			oldestTime = sess.lastAccessed
		}
	}
	if oldest == "" {
		return false
	}
	logger.Log.WithField("session_id", oldest).Info("Evicting least-recently-accessed session")
	s.removeLocked(oldest)
	metrics.IncSessionEvicted()
	return true
}

func (s *Store) removeLocked(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	for runID := range sess.runs {
		delete(s.runIndex, runID)
	}
	delete(s.sessions, id)
}
