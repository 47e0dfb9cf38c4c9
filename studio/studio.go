package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloonapi/models"
	"cloonapi/services"

	"github.com/getsentry/sentry-go"
)

// Notifier is how the executor reports terminal outcomes to the outside
// world: a push to the user on success, an ops alert on failure.
type Notifier interface {
	LookReady(userId uint, lookId string)
	GenerationFailed(userId uint, taskId string, err error)
}

type Deps struct {
	Compositor services.CompositorProvider
	Store      services.LookStoreProvider
	AWS        services.AWSServiceProvider
	URLCache   services.URLCacheServiceProvider
	Notifier   Notifier
	BucketName string
}

const maxNotices = 10

// Studio owns everything generation-related for one user: the strictly
// ordered task queue, the single executor, the optimistic in-memory result
// list and the active subject. All mutable state sits behind one mutex; the
// executor goroutine holds it only for short reads and swaps, never across
// a model call.
type Studio struct {
	userId uint
	deps   Deps

	mu        sync.Mutex
	subject   *models.SubjectRecord
	results   []models.LookRecord
	notices   []models.StudioNotice
	queue     []*GenerationTask
	executing bool
	progress  int
	// epoch increments on every subject replacement; an in-flight task
	// whose epoch is stale discards its result instead of inserting it
	epoch uint64
}

func NewStudio(userId uint, deps Deps) *Studio {
	return &Studio{userId: userId, deps: deps}
}

// hydrate rebuilds the in-memory view from the durable store. Called once
// when the studio is materialized; after a restart the result list is the
// durable history, nothing more.
func (s *Studio) hydrate(ctx context.Context) error {
	subject, err := s.deps.Store.ActiveSubject(ctx, s.userId)
	if err != nil {
		return err
	}
	looks, err := s.deps.Store.ListLooks(ctx, s.userId)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.subject = subject
	s.results = looks
	s.mu.Unlock()
	return nil
}

// Enqueue appends the task and wakes the executor if it is idle. Returns
// the pending count including the task just added.
func (s *Studio) Enqueue(task *GenerationTask) int {
	s.mu.Lock()
	s.queue = append(s.queue, task)
	pending := len(s.queue)
	start := !s.executing
	if start {
		s.executing = true
	}
	s.mu.Unlock()

	fmt.Printf("[Studio %v] enqueued task %s, pending: %v\n", s.userId, task.ID, pending)
	if start {
		go s.drain()
	}
	return pending
}

// drain runs queued tasks one at a time in arrival order. The head stays in
// the queue while it executes, so the queue length is always the pending
// count. After each task the head is popped only if it is still the same
// task: a subject swap may have cleared the queue underneath us.
func (s *Studio) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.executing = false
			s.progress = 0
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		epoch := s.epoch
		s.mu.Unlock()

		s.execute(context.Background(), task, epoch)

		s.mu.Lock()
		if len(s.queue) > 0 && s.queue[0] == task {
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()
	}
}

// Pending reports queued tasks including the one in flight.
func (s *Studio) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Status snapshots the whole studio for the client.
func (s *Studio) Status() models.StudioStatusOut {
	s.mu.Lock()
	defer s.mu.Unlock()
	looks := make([]models.LookRecord, len(s.results))
	copy(looks, s.results)
	notices := make([]models.StudioNotice, len(s.notices))
	copy(notices, s.notices)
	var subject *models.SubjectRecord
	if s.subject != nil {
		copied := *s.subject
		subject = &copied
	}
	return models.StudioStatusOut{
		Pending:   len(s.queue),
		Executing: s.executing,
		Progress:  s.progress,
		Subject:   subject,
		Looks:     looks,
		Notices:   notices,
	}
}

func (s *Studio) Subject() *models.SubjectRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subject == nil {
		return nil
	}
	copied := *s.subject
	return &copied
}

func (s *Studio) Looks() []models.LookRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	looks := make([]models.LookRecord, len(s.results))
	copy(looks, s.results)
	return looks
}

// DeleteLook removes a look from the local list and, for durable ids, from
// the store. Deleting an optimistic entry is local-only; if its persist is
// still in flight the executor notices the missing entry afterwards and
// issues the compensating durable delete itself.
func (s *Studio) DeleteLook(ctx context.Context, lookId string) error {
	s.mu.Lock()
	found := false
	for i, record := range s.results {
		if record.ID == lookId {
			s.results = append(s.results[:i], s.results[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return services.ErrLookNotFound
	}

	err := s.deps.Store.DeleteLook(ctx, s.userId, lookId)
	if err == services.ErrLookNotFound {
		// optimistic id or an already-removed row, local removal is enough
		return nil
	}
	if err != nil {
		fmt.Printf("[Studio %v] durable delete of look %s failed: %v\n", s.userId, lookId, err)
		sentry.CaptureException(err)
		return err
	}
	return nil
}

// ScoreLook runs the stylist rating over an existing look's image. Reads
// only, no queue involvement: scoring an old look while a new one renders
// is fine.
func (s *Studio) ScoreLook(ctx context.Context, lookId string) (*services.StyleScore, error) {
	look := s.findLook(lookId)
	if look == nil {
		return nil, services.ErrLookNotFound
	}
	image, err := s.fetchImage(ctx, look.ImageKey)
	if err != nil {
		return nil, err
	}
	return s.deps.Compositor.ScoreOutfit(ctx, image)
}

// ReplaceSubject swaps the user's base model image and resets the studio:
// pending tasks are dropped, the in-flight task (if any) is orphaned via the
// epoch bump, all prior looks are wiped durably and the fresh subject is
// saved with its base look.
func (s *Studio) ReplaceSubject(ctx context.Context, imageKey string) (*models.SubjectRecord, error) {
	s.mu.Lock()
	s.epoch++
	s.queue = nil
	s.results = nil
	s.notices = nil
	s.progress = 0
	s.mu.Unlock()

	if err := s.deps.Store.ClearStudio(ctx, s.userId); err != nil {
		return nil, err
	}
	subject, err := s.deps.Store.SaveSubject(ctx, s.userId, imageKey)
	if err != nil {
		return nil, err
	}
	// the bare subject is itself the first look, with nothing worn
	baseLook, err := s.deps.Store.CreateLook(ctx, s.userId, imageKey, nil, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.subject = subject
	s.results = []models.LookRecord{*baseLook}
	s.mu.Unlock()
	fmt.Printf("[Studio %v] subject replaced, studio reset\n", s.userId)
	return subject, nil
}

// WaitIdle blocks until the queue is drained or the timeout passes. Used by
// graceful shutdown and tests.
func (s *Studio) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		idle := !s.executing && len(s.queue) == 0
		s.mu.Unlock()
		if idle {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (s *Studio) addNotice(taskId string, kind string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, models.StudioNotice{TaskId: taskId, Kind: kind, Message: message})
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
}
