// Package timeline keeps the client-side copy of each connection's
// timeline in step with the server.
package timeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"outreach/models"
)

// Fetcher loads the authoritative timeline for a connection
type Fetcher interface {
	GetTimeline(ctx context.Context, connectionID uint) (*models.Timeline, error)
}

// UpdateFunc observes a replaced timeline
type UpdateFunc func(connectionID uint, tl *models.Timeline)

// Reconciler holds the latest server timeline per connection. A timeline
// is only ever replaced as a whole, never patched.
type Reconciler struct {
	mu        sync.RWMutex
	timelines map[uint]*models.Timeline
	observer  UpdateFunc
	log       *logrus.Entry
}

func NewReconciler(log *logrus.Entry) *Reconciler {
	if log == nil {
		log = logrus.WithField("component", "timeline")
	}
	return &Reconciler{
		timelines: make(map[uint]*models.Timeline),
		log:       log,
	}
}

// OnUpdate registers the single observer, replacing any previous one
func (r *Reconciler) OnUpdate(fn UpdateFunc) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// Apply replaces the stored timeline for connectionID with tl and notifies
// the observer. A nil tl means the response carried no timeline: nothing
// is stored and the observer is not called. An empty timeline is still a
// replacement.
func (r *Reconciler) Apply(connectionID uint, tl *models.Timeline) {
	if tl == nil {
		return
	}

	next := tl.Clone()
	next.SortStages()

	r.mu.Lock()
	r.timelines[connectionID] = next
	observer := r.observer
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"connection_id": connectionID,
		"stages":        len(next.Stages),
	}).Debug("Timeline replaced")

	if observer != nil {
		observer(connectionID, next.Clone())
	}
}

// Current returns a copy of the stored timeline, or nil if none is known
func (r *Reconciler) Current(connectionID uint) *models.Timeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timelines[connectionID].Clone()
}

// Refresh fetches the timeline from f and applies it
func (r *Reconciler) Refresh(ctx context.Context, f Fetcher, connectionID uint) (*models.Timeline, error) {
	tl, err := f.GetTimeline(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	r.Apply(connectionID, tl)
	return r.Current(connectionID), nil
}

// Forget drops the stored timeline for a connection
func (r *Reconciler) Forget(connectionID uint) {
	r.mu.Lock()
	delete(r.timelines, connectionID)
	r.mu.Unlock()
}
