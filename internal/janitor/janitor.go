// Package janitor tracks every temporary file and directory the extraction
// pipeline creates and reclaims them on schedule, on demand, or when the
// registry outgrows its count, size, or age caps.
package janitor

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docextract/internal/logger"
)

// Kind identifies what a tracked resource is on disk.
type Kind string

const (
	KindPDF       Kind = "pdf"
	KindImage     Kind = "image"
	KindDirectory Kind = "directory"
)

// Resource is one tracked temporary file or directory.
type Resource struct {
	ID               string
	Path             string
	Size             int64
	CreatedAt        time.Time
	SessionID        string
	Kind             Kind
	CleanupScheduled bool
}

// Limits caps the registry. Zero fields mean unlimited.
type Limits struct {
	MaxResourceCount int
	MaxTotalSize     int64
	MaxResourceAge   time.Duration
}

// Janitor is the tracked-resource registry. All mutation points are
// mutex-guarded; the periodic sweep runs on its own timer and bounds its work
// per tick so it never starves extraction sessions.
type Janitor struct {
	mu        sync.Mutex
	resources map[string]*Resource
	order     []string // registration order, oldest first
	totalSize int64

	limits Limits
	now    func() time.Time
	done   chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

// sweepBatchSize bounds how many resources one periodic tick may delete.
const sweepBatchSize = 32

// New creates a janitor with the given caps.
func New(limits Limits) *Janitor {
	return &Janitor{
		resources: make(map[string]*Resource),
		limits:    limits,
		now:       time.Now,
		done:      make(chan struct{}),
		log:       logger.WithComponent("janitor"),
	}
}

// Register tracks a resource and returns its id. Registration happens before
// first use of the path, so an early pipeline failure still reclaims it.
// Exceeding the count or size caps evicts oldest resources immediately.
func (j *Janitor) Register(path string, kind Kind, sessionID string) string {
	var size int64
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		size = info.Size()
	}

	res := &Resource{
		ID:        uuid.NewString(),
		Path:      path,
		Size:      size,
		CreatedAt: j.now(),
		SessionID: sessionID,
		Kind:      kind,
	}

	var evicted []*Resource
	j.mu.Lock()
	j.resources[res.ID] = res
	j.order = append(j.order, res.ID)
	j.totalSize += size
	evicted = j.evictOverCapsLocked()
	j.mu.Unlock()

	j.deleteAll(evicted)
	return res.ID
}

// ScheduleCleanup deletes the resource after the given delay.
func (j *Janitor) ScheduleCleanup(id string, delay time.Duration) {
	j.mu.Lock()
	res, ok := j.resources[id]
	if ok {
		res.CleanupScheduled = true
	}
	j.mu.Unlock()
	if !ok {
		return
	}

	time.AfterFunc(delay, func() {
		if res := j.take(id); res != nil {
			j.deleteAll([]*Resource{res})
		}
	})
}

// CleanupBySession reclaims every resource tagged with the session id and
// returns how many were cleaned. Files are deleted before directories so the
// directory removal is not fighting its own contents.
func (j *Janitor) CleanupBySession(sessionID string) int {
	j.mu.Lock()
	var files, dirs []*Resource
	for _, id := range j.order {
		res := j.resources[id]
		if res == nil || res.SessionID != sessionID {
			continue
		}
		if res.Kind == KindDirectory {
			dirs = append(dirs, res)
		} else {
			files = append(files, res)
		}
	}
	for _, res := range append(append([]*Resource{}, files...), dirs...) {
		j.removeLocked(res)
	}
	j.mu.Unlock()

	cleaned := j.deleteAll(files)
	cleaned += j.deleteAll(dirs)
	return cleaned
}

// Sweep deletes up to max resources that are over the age cap, oldest first,
// and then enforces the count and size caps. Returns how many were deleted.
func (j *Janitor) Sweep(max int) int {
	now := j.now()

	j.mu.Lock()
	var expired []*Resource
	if j.limits.MaxResourceAge > 0 {
		for _, id := range j.order {
			if len(expired) >= max {
				break
			}
			res := j.resources[id]
			if res != nil && now.Sub(res.CreatedAt) > j.limits.MaxResourceAge {
				expired = append(expired, res)
			}
		}
		for _, res := range expired {
			j.removeLocked(res)
		}
	}
	over := j.evictOverCapsLocked()
	j.mu.Unlock()

	return j.deleteAll(expired) + j.deleteAll(over)
}

// StartSweeper runs Sweep on the given interval until Stop is called.
func (j *Janitor) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.Sweep(sweepBatchSize)
			case <-j.done:
				return
			}
		}
	}()
}

// Stop halts the periodic sweeper. Tracked resources stay registered.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.done) })
}

// TrackedCount returns the number of tracked resources.
func (j *Janitor) TrackedCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.resources)
}

// TrackedSize returns the total size of tracked resources in bytes.
func (j *Janitor) TrackedSize() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalSize
}

// evictOverCapsLocked pops oldest resources until both the count and size
// caps hold. Caller holds the mutex; deletion happens outside it.
func (j *Janitor) evictOverCapsLocked() []*Resource {
	var evicted []*Resource
	for {
		overCount := j.limits.MaxResourceCount > 0 && len(j.resources) > j.limits.MaxResourceCount
		overSize := j.limits.MaxTotalSize > 0 && j.totalSize > j.limits.MaxTotalSize
		if !overCount && !overSize {
			return evicted
		}
		oldest := j.oldestLocked()
		if oldest == nil {
			return evicted
		}
		j.removeLocked(oldest)
		evicted = append(evicted, oldest)
	}
}

func (j *Janitor) oldestLocked() *Resource {
	for _, id := range j.order {
		if res := j.resources[id]; res != nil {
			return res
		}
	}
	return nil
}

// removeLocked drops the resource from tracking without touching disk.
func (j *Janitor) removeLocked(res *Resource) {
	if _, ok := j.resources[res.ID]; !ok {
		return
	}
	delete(j.resources, res.ID)
	j.totalSize -= res.Size
	for i, id := range j.order {
		if id == res.ID {
			j.order = append(j.order[:i], j.order[i+1:]...)
			break
		}
	}
}

// take removes a resource from tracking by id and returns it.
func (j *Janitor) take(id string) *Resource {
	j.mu.Lock()
	defer j.mu.Unlock()
	res := j.resources[id]
	if res != nil {
		j.removeLocked(res)
	}
	return res
}

// deleteAll removes the resources from disk. A missing file counts as
// cleaned; other deletion errors are logged, not escalated, and the resource
// goes back into tracking so a later sweep retries it.
func (j *Janitor) deleteAll(resources []*Resource) int {
	cleaned := 0
	for _, res := range resources {
		var err error
		if res.Kind == KindDirectory {
			err = os.RemoveAll(res.Path)
		} else {
			err = os.Remove(res.Path)
		}
		if err != nil && !os.IsNotExist(err) {
			j.log.Warn().
				Err(err).
				Str("path", res.Path).
				Str("session_id", res.SessionID).
				Msg("Failed to delete tracked resource")
			j.retrack(res)
			continue
		}
		cleaned++
	}
	return cleaned
}

// retrack puts a resource whose deletion failed back into the registry.
func (j *Janitor) retrack(res *Resource) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.resources[res.ID]; ok {
		return
	}
	j.resources[res.ID] = res
	j.order = append(j.order, res.ID)
	j.totalSize += res.Size
}
