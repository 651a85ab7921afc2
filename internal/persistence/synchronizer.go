package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manpreetbhatti/focusflow/backend/internal/logging"
	"github.com/manpreetbhatti/focusflow/backend/internal/workspace"
)

type Config struct {
	FlushInterval time.Duration
	FlushTimeout  time.Duration
	LoadTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		FlushInterval: 30 * time.Second,
		FlushTimeout:  10 * time.Second,
		LoadTimeout:   10 * time.Second,
	}
}

// Synchronizer loads workspaces on demand and flushes dirty ones
type Synchronizer struct {
	store      DocumentStore
	workspaces *workspace.Store
	config     Config
	log        *logrus.Entry

	dirty   map[string]struct{}
	dirtyMu sync.Mutex

	// serializes store access per workspace: writes, so an older snapshot
	// never lands last, and loads against removals
	writeLocks   map[string]*sync.Mutex
	writeLocksMu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	flushes  sync.WaitGroup
	now      func() time.Time
}

func New(store DocumentStore, workspaces *workspace.Store, config Config) *Synchronizer {
	return &Synchronizer{
		store:      store,
		workspaces: workspaces,
		config:     config,
		log:        logging.NewLogger("persistence"),
		dirty:      make(map[string]struct{}),
		writeLocks: make(map[string]*sync.Mutex),
		stop:       make(chan struct{}),
		now:        time.Now,
	}
}

func (s *Synchronizer) Start() {
	s.wg.Add(1)
	go s.run()
	s.log.WithField("interval", s.config.FlushInterval).Info("Flush loop started")
}

// Stop ends the flush loop, waits for scheduled flushes and drains every
// dirty workspace one last time.
func (s *Synchronizer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.flushes.Wait()

		flushed, err := s.FlushCycle(context.Background())
		if err != nil {
			s.log.WithError(err).Error("Final flush left workspaces dirty")
		}
		s.log.WithField("flushed", flushed).Info("Flush loop stopped")
	})
}

func (s *Synchronizer) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if _, err := s.FlushCycle(context.Background()); err != nil {
				s.log.WithError(err).Warn("Flush cycle incomplete, failed workspaces stay dirty")
			}
		}
	}
}

// EnsureLoaded returns the resident workspace, reading it from the store
// first if needed. A missing record yields an empty document. The read holds
// the workspace's store lock, never the workspace itself.
func (s *Synchronizer) EnsureLoaded(ctx context.Context, workspaceID string) (*workspace.Workspace, error) {
	if w, ok := s.workspaces.Get(workspaceID); ok {
		return w, nil
	}

	lock := s.writeLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	if w, ok := s.workspaces.Get(workspaceID); ok {
		return w, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.config.LoadTimeout)
	defer cancel()

	doc, err := s.store.FindOne(loadCtx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace %s: %w", workspaceID, err)
	}

	var state map[string]interface{}
	if doc != nil && len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &state); err != nil {
			return nil, fmt.Errorf("failed to decode workspace %s: %w", workspaceID, err)
		}
	}

	w := s.workspaces.Seed(workspaceID, state)
	s.log.WithFields(logrus.Fields{
		"workspace": workspaceID,
		"found":     doc != nil,
		"keys":      w.Len(),
	}).Debug("Workspace loaded")
	return w, nil
}

// ErrResident is returned by RemoveStored for a workspace held in memory
var ErrResident = errors.New("workspace is resident")

// RemoveStored runs remove for a workspace that is not resident. No load of
// the same workspace can start until remove returns, so a removed record is
// never read back and flushed again.
func (s *Synchronizer) RemoveStored(ctx context.Context, workspaceID string, remove func(ctx context.Context) error) error {
	lock := s.writeLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := s.workspaces.Get(workspaceID); ok {
		return ErrResident
	}
	if err := remove(ctx); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", workspaceID, err)
	}
	s.log.WithField("workspace", workspaceID).Info("Stored workspace removed")
	return nil
}

// MarkDirty records that a workspace has unsaved changes
func (s *Synchronizer) MarkDirty(workspaceID string) {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	s.dirty[workspaceID] = struct{}{}
}

func (s *Synchronizer) IsDirty(workspaceID string) bool {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	_, ok := s.dirty[workspaceID]
	return ok
}

// DirtyIDs returns the dirty set, sorted
func (s *Synchronizer) DirtyIDs() []string {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Synchronizer) clearDirty(workspaceID string) {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	delete(s.dirty, workspaceID)
}

// FlushCycle writes every workspace that is dirty when the cycle starts.
// Workspaces that fail stay dirty; the joined errors are returned.
func (s *Synchronizer) FlushCycle(ctx context.Context) (int, error) {
	ids := s.DirtyIDs()
	if len(ids) == 0 {
		return 0, nil
	}

	flushed := 0
	var errs []error
	for _, id := range ids {
		if err := s.write(ctx, id); err != nil {
			s.log.WithError(err).WithField("workspace", id).Error("Flush failed")
			errs = append(errs, err)
			continue
		}
		flushed++
	}

	s.log.WithFields(logrus.Fields{
		"flushed": flushed,
		"failed":  len(errs),
	}).Debug("Flush cycle done")
	return flushed, errors.Join(errs...)
}

// FlushNow writes one workspace immediately, dirty or not
func (s *Synchronizer) FlushNow(ctx context.Context, workspaceID string) error {
	if err := s.write(ctx, workspaceID); err != nil {
		s.log.WithError(err).WithField("workspace", workspaceID).Error("Immediate flush failed")
		return err
	}
	s.log.WithField("workspace", workspaceID).Debug("Workspace flushed")
	return nil
}

// ScheduleFlush runs FlushNow in the background. Stop waits for it.
func (s *Synchronizer) ScheduleFlush(workspaceID string) {
	s.flushes.Add(1)
	go func() {
		defer s.flushes.Done()
		_ = s.FlushNow(context.Background(), workspaceID)
	}()
}

func (s *Synchronizer) writeLock(workspaceID string) *sync.Mutex {
	s.writeLocksMu.Lock()
	defer s.writeLocksMu.Unlock()
	lock, ok := s.writeLocks[workspaceID]
	if !ok {
		lock = &sync.Mutex{}
		s.writeLocks[workspaceID] = lock
	}
	return lock
}

// write clears the dirty flag before taking the snapshot, so a mutation
// racing with the write marks the workspace dirty again.
func (s *Synchronizer) write(ctx context.Context, workspaceID string) error {
	w, ok := s.workspaces.Get(workspaceID)
	if !ok {
		s.clearDirty(workspaceID)
		return nil
	}

	lock := s.writeLock(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	s.clearDirty(workspaceID)

	data, err := w.Snapshot()
	if err != nil {
		s.MarkDirty(workspaceID)
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.config.FlushTimeout)
	defer cancel()

	if err := s.store.Upsert(writeCtx, workspaceID, Document{Data: data, UpdatedAt: s.now().UTC()}); err != nil {
		s.MarkDirty(workspaceID)
		return fmt.Errorf("failed to persist workspace %s: %w", workspaceID, err)
	}
	return nil
}
