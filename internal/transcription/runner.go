package transcription

import (
	"context"
	"sync"
	"time"

	"github.com/reelnotes/reelnotes-backend/internal/events"
	"github.com/reelnotes/reelnotes-backend/internal/logger"
)

const publishTimeout = 5 * time.Second

// Job is one scheduled transcription.
type Job struct {
	ProjectID   string
	OwnerUserID string
	Media       Media
}

type task struct {
	cancel context.CancelFunc
}

// Runner runs one background transcription per project. Each task holds a
// cancellation token tied to the project's lifetime; a cancelled task never
// publishes its result.
type Runner struct {
	gateway Gateway
	bus     events.Bus
	now     func() time.Time

	mu    sync.Mutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

func NewRunner(gateway Gateway, bus events.Bus) *Runner {
	return &Runner{
		gateway: gateway,
		bus:     bus,
		now:     time.Now,
		tasks:   make(map[string]*task),
	}
}

// Schedule starts transcribing job.Media and returns immediately. A task
// already running for the same project is cancelled and replaced.
func (r *Runner) Schedule(job Job) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if prev, ok := r.tasks[job.ProjectID]; ok {
		prev.cancel()
	}
	t := &task{cancel: cancel}
	r.tasks[job.ProjectID] = t
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(ctx, t, job)
	}()
}

func (r *Runner) run(ctx context.Context, t *task, job Job) {
	log := logger.New(ctx)
	log.LogInfof("transcription_task", "started project_id=%s bytes=%d", job.ProjectID, len(job.Media.Data))
	log.LogDebugf("transcription_task", "project_id=%s mime=%s hash=%s", job.ProjectID, job.Media.MimeType, job.Media.Hash)

	segs, err := r.gateway.Transcribe(ctx, job.Media)

	r.mu.Lock()
	current, ok := r.tasks[job.ProjectID]
	live := ok && current == t && ctx.Err() == nil
	if ok && current == t {
		delete(r.tasks, job.ProjectID)
	}
	r.mu.Unlock()

	if !live {
		recordCancelledTask()
		log.LogInfof("transcription_task", "dropped result of cancelled task project_id=%s", job.ProjectID)
		return
	}

	e := events.Event{
		Topic:       events.TopicTranscriptionFinished,
		ProjectID:   job.ProjectID,
		OwnerUserID: job.OwnerUserID,
		At:          r.now().UTC(),
		Segments:    segs,
	}
	if err != nil {
		e.Segments = nil
		e.Error = ErrTranscriptionFailed.Error()
		log.LogWarnf("transcription_task", "failed project_id=%s error=%v", job.ProjectID, err)
	}

	pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if perr := r.bus.Publish(pctx, e); perr != nil {
		log.LogErrorf("transcription_task", "publish failed project_id=%s error=%v", job.ProjectID, perr)
	}
}

// Cancel invalidates the project's task token. It reports whether a task
// was running.
func (r *Runner) Cancel(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[projectID]
	if !ok {
		return false
	}
	t.cancel()
	delete(r.tasks, projectID)
	return true
}

// Active reports whether a transcription task is live for the project.
func (r *Runner) Active(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[projectID]
	return ok
}

// CancelAll cancels every running task; used on shutdown.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		t.cancel()
		delete(r.tasks, id)
	}
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
