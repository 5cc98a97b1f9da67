package dispatch

import (
	"context"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/helmrepo"
	"github.com/headwind-sh/headwind/internal/metrics"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/registry"
)

// baseTickCap bounds the poll loop resolution so per-workload intervals
// shorter than the global one are honored.
const baseTickCap = 30 * time.Second

// PollerConfig configures the registry polling loop.
type PollerConfig struct {
	Interval          time.Duration
	HelmAutoDiscovery bool
}

// Poller periodically queries registries and chart repositories for the
// tracked workloads whose event source includes polling, and submits the
// greatest admissible candidate per slot.
type Poller struct {
	config     PollerConfig
	index      *Index
	dispatcher *Dispatcher
	tags       registry.TagLister
	charts     helmrepo.VersionLister

	// nextDue tracks per-workload schedules for polling-interval overrides.
	nextDue map[model.WorkloadRef]time.Time
}

// NewPoller builds the polling loop.
func NewPoller(config PollerConfig, index *Index, dispatcher *Dispatcher, tags registry.TagLister, charts helmrepo.VersionLister) *Poller {
	return &Poller{
		config:     config,
		index:      index,
		dispatcher: dispatcher,
		tags:       tags,
		charts:     charts,
		nextDue:    make(map[model.WorkloadRef]time.Time),
	}
}

// Start runs polling cycles until the context is canceled. It implements
// manager.Runnable.
func (p *Poller) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("registry-poller")

	tick := p.config.Interval
	if tick > baseTickCap {
		tick = baseTickCap
	}

	logger.Info("Starting registry poller",
		"interval", p.config.Interval,
		"tick", tick,
		"helmAutoDiscovery", p.config.HelmAutoDiscovery,
	)

	// First cycle runs immediately so a fresh controller discovers pending
	// updates without waiting a full interval.
	p.cycle(ctx)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Registry poller stopped")
			return nil
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("registry-poller")
	metrics.PollingCycles.Inc()

	now := time.Now()
	for _, t := range p.index.Snapshot() {
		if !t.Policy.AcceptsPolling() {
			metrics.PollingResourcesFiltered.Inc()
			continue
		}

		if due, ok := p.nextDue[t.Ref]; ok && now.Before(due) {
			continue
		}
		interval := t.Policy.PollingInterval
		if interval == 0 {
			interval = p.config.Interval
		}
		p.nextDue[t.Ref] = now.Add(interval)

		if t.Ref.Kind == model.KindHelmRelease {
			p.pollChart(ctx, t)
			continue
		}
		p.pollImages(ctx, t)
	}

	logger.V(1).Info("Polling cycle completed", "tracked", p.index.Len())
}

func (p *Poller) pollImages(ctx context.Context, t Tracked) {
	logger := log.FromContext(ctx).WithName("registry-poller")

	for _, slot := range t.Slots {
		if !t.Policy.TracksImage(slot.Current) {
			continue
		}
		metrics.PollingImagesChecked.Inc()

		tags, err := p.tags.ListTags(ctx, slot.Current)
		if err != nil {
			metrics.PollingErrors.Inc()
			logger.Error(err, "failed to list tags",
				"workload", t.Ref.String(), "image", slot.Current)
			continue
		}

		repo, currentTag := model.SplitImage(slot.Current)
		selected, ok := t.Policy.Select(currentTag, tags)
		if !ok {
			continue
		}

		metrics.PollingNewTagsFound.Inc()
		logger.Info("New admissible tag found",
			"workload", t.Ref.String(), "image", repo, "current", currentTag, "candidate", selected)

		p.dispatcher.submit(model.CandidateProposal{
			Workload:   t.Ref,
			Slot:       slot.Name,
			Current:    slot.Current,
			Candidate:  model.JoinImage(repo, selected),
			Origin:     model.OriginPolling,
			ObservedAt: time.Now(),
		})
	}
}

func (p *Poller) pollChart(ctx context.Context, t Tracked) {
	logger := log.FromContext(ctx).WithName("registry-poller")

	if !p.config.HelmAutoDiscovery || t.ChartRepoURL == "" || t.Chart == "" {
		return
	}
	metrics.PollingImagesChecked.Inc()

	versions, err := p.charts.ListVersions(ctx, t.ChartRepoURL, t.Chart)
	if err != nil {
		metrics.PollingErrors.Inc()
		logger.Error(err, "failed to list chart versions",
			"workload", t.Ref.String(), "chart", t.Chart, "repository", t.ChartRepoURL)
		return
	}

	for _, slot := range t.Slots {
		selected, ok := t.Policy.Select(slot.Current, versions)
		if !ok {
			continue
		}
		metrics.PollingNewTagsFound.Inc()
		logger.Info("New admissible chart version found",
			"workload", t.Ref.String(), "chart", t.Chart, "current", slot.Current, "candidate", selected)

		p.dispatcher.submit(model.CandidateProposal{
			Workload:   t.Ref,
			Slot:       slot.Name,
			Current:    slot.Current,
			Candidate:  selected,
			Origin:     model.OriginPolling,
			ObservedAt: time.Now(),
		})
	}
}
