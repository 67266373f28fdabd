// Package pipeline runs one complete transfer cycle: scan a window, classify
// the resulting directory groups, stage the archived ones, assemble the
// manifest, and hand it to the transfer service. A run is a linear state
// machine; the terminal state plus the counter snapshot is the whole outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/rwilfong/globus-transfer/internal/bundle"
	"github.com/rwilfong/globus-transfer/internal/classify"
	"github.com/rwilfong/globus-transfer/internal/manifest"
	"github.com/rwilfong/globus-transfer/internal/scan"
	"github.com/rwilfong/globus-transfer/internal/stats"
	"github.com/rwilfong/globus-transfer/internal/submit"
	"github.com/rwilfong/globus-transfer/internal/window"
)

// State is the run's position in the cycle. Runs move strictly forward;
// Submitted, Skipped and Failed are terminal. ManifestReady is terminal only
// for dry runs, which stop before submission.
type State int

const (
	Scanning State = iota
	Classifying
	Staging
	ManifestReady
	Submitted
	Skipped
	Failed
)

var stateNames = [...]string{
	Scanning:      "SCANNING",
	Classifying:   "CLASSIFYING",
	Staging:       "STAGING",
	ManifestReady: "MANIFEST_READY",
	Submitted:     "SUBMITTED",
	Skipped:       "SKIPPED",
	Failed:        "FAILED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Stager stages one archive group and tracks what it wrote. Satisfied by
// *bundle.Builder.
type Stager interface {
	Build(ctx context.Context, g scan.DirectoryGroup) (bundle.Bundle, error)
	Staged() []string
	Cleanup()
}

// Config assembles everything one run needs.
type Config struct {
	ScanRoot string
	Window   window.Window
	Workers  int

	Threshold   int64 // mean-size cutoff in bytes; <=0 means the default
	StagingRoot string

	RemoteSourceRoot  string
	RemoteDestRoot    string
	RemoteStagingRoot string
	TimestampRename   bool
	Policy            manifest.SyncPolicy

	// DryRun stops after MANIFEST_READY: no staging writes, no submission.
	DryRun bool

	Submitter submit.Submitter
	Stats     *stats.Collector
	Logger    *slog.Logger

	// Stager overrides the default bundle builder, mostly for tests.
	Stager Stager
}

// Result is the outcome of one run.
type Result struct {
	State    State
	Task     submit.TaskHandle
	Manifest *manifest.Manifest
	Stats    stats.Snapshot
	Err      error
}

// Run executes one cycle. Group-level staging failures drop that group and
// continue; everything else that goes wrong is fatal for the run. A run
// aborted before the manifest is complete removes its staged bundles; a run
// that reached submission leaves them for the next attempt or the external
// staging cleanup.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = classify.DefaultThreshold
	}
	if cfg.Submitter == nil && !cfg.DryRun {
		return fail(cfg, Failed, errors.New("pipeline: no submitter configured"))
	}
	log := cfg.Logger.With("window", cfg.Window.Label())

	log.Info("scanning", "root", cfg.ScanRoot,
		"start", cfg.Window.Start, "end", cfg.Window.End)
	groups, err := collectGroups(ctx, cfg, log)
	if err != nil {
		return fail(cfg, Failed, err)
	}
	log.Info("scan complete", "groups", len(groups))

	decisions, err := classifyGroups(cfg, groups, log)
	if err != nil {
		return fail(cfg, Failed, err)
	}

	stager := cfg.Stager
	if stager == nil {
		stager = bundle.NewBuilder(bundle.Config{
			StagingRoot: cfg.StagingRoot,
			Label:       cfg.Window.Label(),
			Digest:      cfg.Policy.VerifyChecksum,
		})
	}

	m, err := stageAndAssemble(ctx, cfg, decisions, stager, log)
	if err != nil {
		stager.Cleanup()
		return fail(cfg, Failed, err)
	}

	snap := cfg.Stats.Snapshot()
	if m.Empty() {
		stager.Cleanup()
		if snap.GroupsDropped > 0 {
			return fail(cfg, Failed, fmt.Errorf(
				"pipeline: all %d archive groups failed to stage", snap.GroupsDropped))
		}
		log.Info("nothing to transfer")
		return Result{State: Skipped, Manifest: m, Stats: snap}
	}

	if cfg.DryRun {
		log.Info("dry run, stopping before submission", "items", m.Len())
		return Result{State: ManifestReady, Manifest: m, Stats: snap}
	}

	// A failed submission leaves staged bundles intact: the retry run
	// regenerates the same deterministic names and resubmits them.
	task, err := cfg.Submitter.Submit(ctx, m)
	if err != nil {
		return Result{State: Failed, Manifest: m, Stats: cfg.Stats.Snapshot(), Err: err}
	}

	log.Info("submitted", "task_id", task.ID, "items", m.Len(), "stats", snap.String())
	if staged := stager.Staged(); len(staged) > 0 {
		log.Warn("staged bundles remain until the transfer completes",
			"count", len(staged), "staging_root", cfg.StagingRoot)
	}
	return Result{State: Submitted, Task: task, Manifest: m, Stats: cfg.Stats.Snapshot()}
}

func fail(cfg Config, s State, err error) Result {
	return Result{State: s, Stats: cfg.Stats.Snapshot(), Err: err}
}

// collectGroups drains both scanner channels. Skips are counted and logged,
// never fatal. Groups are sorted by directory so classification, staging and
// the manifest item order are stable across runs.
func collectGroups(ctx context.Context, cfg Config, log *slog.Logger) ([]scan.DirectoryGroup, error) {
	scanner := scan.NewScanner(scan.Config{
		Root:    cfg.ScanRoot,
		Window:  cfg.Window,
		Workers: cfg.Workers,
	})
	groupCh, skipCh := scanner.Scan(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for sk := range skipCh {
			cfg.Stats.AddFilesSkipped(1)
			log.Warn("skipped", "path", sk.Path, "reason", sk.Reason)
		}
	}()

	var groups []scan.DirectoryGroup
	for g := range groupCh {
		cfg.Stats.AddFilesConsidered(int64(g.Len()))
		cfg.Stats.AddBytesConsidered(g.TotalBytes())
		groups = append(groups, g)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Dir < groups[j].Dir })
	return groups, nil
}

func classifyGroups(cfg Config, groups []scan.DirectoryGroup, log *slog.Logger) ([]classify.Decision, error) {
	decisions := make([]classify.Decision, 0, len(groups))
	for _, g := range groups {
		d, err := classify.Decide(g, cfg.Threshold)
		if err != nil {
			return nil, err
		}
		log.Debug("classified", "dir", g.Dir, "strategy", d.Strategy.String(),
			"files", g.Len(), "mean_bytes", int64(classify.MeanSize(g)))
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// stageAndAssemble builds bundles for archive groups and turns every
// surviving decision into manifest items. A staging failure drops only its
// own group.
func stageAndAssemble(ctx context.Context, cfg Config, decisions []classify.Decision, stager Stager, log *slog.Logger) (*manifest.Manifest, error) {
	mb := manifest.NewBuilder(manifest.Config{
		Label:             cfg.Window.Label(),
		RemoteSourceRoot:  cfg.RemoteSourceRoot,
		RemoteDestRoot:    cfg.RemoteDestRoot,
		RemoteStagingRoot: cfg.RemoteStagingRoot,
		TimestampRename:   cfg.TimestampRename,
		Policy:            cfg.Policy,
	})

	for _, d := range decisions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g := d.Group

		switch d.Strategy {
		case classify.Raw:
			mb.AddRawGroup(g)
			cfg.Stats.AddGroupsRaw(1)
			cfg.Stats.AddFilesRaw(int64(g.Len()))

		case classify.Archive:
			bdl, err := stageGroup(ctx, cfg, stager, g)
			if err != nil {
				var se *bundle.StagingError
				if errors.As(err, &se) {
					cfg.Stats.AddGroupsDropped(1)
					log.Error("group dropped", "dir", g.Dir, "error", err)
					continue
				}
				return nil, err
			}
			mb.AddBundle(bdl)
			cfg.Stats.AddGroupsArchived(1)
			cfg.Stats.AddFilesArchived(int64(g.Len()))
			if !cfg.DryRun {
				cfg.Stats.AddBundlesStaged(1)
				log.Debug("staged", "bundle", bdl.Name, "files", bdl.Files,
					"bytes", stats.FormatBytes(bdl.Bytes))
			}
		}
	}

	return mb.Build(), nil
}

// stageGroup writes the group's bundle, or synthesizes its metadata for a dry
// run. Names are deterministic, so the dry-run manifest matches what a real
// run would submit.
func stageGroup(ctx context.Context, cfg Config, stager Stager, g scan.DirectoryGroup) (bundle.Bundle, error) {
	if cfg.DryRun {
		return bundle.Bundle{
			Name:  bundle.Name(cfg.Window.Label(), g.Dir),
			Group: g.Dir,
			Files: g.Len(),
			Bytes: g.TotalBytes(),
		}, nil
	}
	return stager.Build(ctx, g)
}
