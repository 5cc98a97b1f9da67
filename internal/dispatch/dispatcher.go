package dispatch

import (
	"context"
	"path"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/policy"
)

// Proposer is the pipeline surface the dispatcher drives.
type Proposer interface {
	Propose(ctx context.Context, prop model.CandidateProposal) error
}

// defaultFlushWindow is how long proposals coalesce before admission. A
// burst of webhook events for the same (workload, slot) collapses to the
// newest proposal inside this window.
const defaultFlushWindow = 500 * time.Millisecond

// Dispatcher demultiplexes webhook events and polling results into
// per-workload candidate proposals, honoring each workload's event-source
// filter and coalescing bursts per (workload, slot).
type Dispatcher struct {
	index    *Index
	proposer Proposer

	flushWindow time.Duration

	mu      sync.Mutex
	pending map[string]model.CandidateProposal
	timer   *time.Timer
	ctx     context.Context
}

// New builds a Dispatcher over the tracked-workload index.
func New(index *Index, proposer Proposer) *Dispatcher {
	return &Dispatcher{
		index:       index,
		proposer:    proposer,
		flushWindow: defaultFlushWindow,
		pending:     make(map[string]model.CandidateProposal),
		ctx:         context.Background(),
	}
}

// Start parks the dispatcher on the manager lifecycle so in-window
// proposals flush with a live context and nothing leaks on shutdown.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	return nil
}

// HandleImagePush fans a normalized image push event out to every tracked
// workload whose event source accepts webhooks and whose tracked images
// include the pushed repository.
func (d *Dispatcher) HandleImagePush(ctx context.Context, ev model.ImagePushEvent) {
	logger := log.FromContext(ctx)
	repo := policy.NormalizeRepository(ev.RepositoryRef())

	matched := 0
	for _, t := range d.index.Snapshot() {
		if t.Ref.Kind == model.KindHelmRelease {
			continue
		}
		if !t.Policy.AcceptsWebhook() || !t.Policy.TracksImage(ev.RepositoryRef()) {
			continue
		}
		for _, slot := range t.Slots {
			slotRepo, _ := model.SplitImage(slot.Current)
			if policy.NormalizeRepository(slotRepo) != repo {
				continue
			}
			candidate := model.JoinImage(slotRepo, ev.Tag)
			if candidate == slot.Current {
				continue
			}
			matched++
			d.submit(model.CandidateProposal{
				Workload:   t.Ref,
				Slot:       slot.Name,
				Current:    slot.Current,
				Candidate:  candidate,
				Origin:     model.OriginWebhook,
				ObservedAt: time.Now(),
			})
		}
	}

	logger.V(1).Info("Image push event dispatched",
		"repository", ev.Repository, "tag", ev.Tag, "proposals", matched)
}

// HandleChartPush fans a chart push event out to tracked HelmReleases
// running that chart.
func (d *Dispatcher) HandleChartPush(ctx context.Context, ev model.ChartPushEvent) {
	logger := log.FromContext(ctx)

	matched := 0
	for _, t := range d.index.Snapshot() {
		if t.Ref.Kind != model.KindHelmRelease || !t.Policy.AcceptsWebhook() {
			continue
		}
		if t.Chart != path.Base(ev.Repository) {
			continue
		}
		for _, slot := range t.Slots {
			if ev.Version == slot.Current {
				continue
			}
			matched++
			d.submit(model.CandidateProposal{
				Workload:   t.Ref,
				Slot:       slot.Name,
				Current:    slot.Current,
				Candidate:  ev.Version,
				Origin:     model.OriginWebhook,
				ObservedAt: time.Now(),
			})
		}
	}

	logger.V(1).Info("Chart push event dispatched",
		"repository", ev.Repository, "version", ev.Version, "proposals", matched)
}

// submit buffers a proposal for admission. A pending proposal for the same
// (workload, slot) is replaced rather than queued behind.
func (d *Dispatcher) submit(prop model.CandidateProposal) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[prop.Key()] = prop
	if d.timer == nil {
		d.timer = time.AfterFunc(d.flushWindow, d.flush)
	}
}

func (d *Dispatcher) flush() {
	d.mu.Lock()
	batch := d.pending
	d.pending = make(map[string]model.CandidateProposal)
	d.timer = nil
	ctx := d.ctx
	d.mu.Unlock()

	logger := log.FromContext(ctx)
	for _, prop := range batch {
		if err := d.proposer.Propose(ctx, prop); err != nil {
			logger.Error(err, "proposal admission failed",
				"workload", prop.Workload.String(), "slot", prop.Slot, "candidate", prop.Candidate)
		}
	}
}
