// Package retention removes finished audit jobs once they age out.
//
// A Pruner deletes COMPLETED and FAILED jobs whose end time is older than
// RetentionDays, optionally archiving them first as JSON lines. A Scheduler
// runs the pruner on a cron schedule.
package retention

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/auditor/pkg/audit"
	"mercator-hq/auditor/pkg/store"
)

// Config controls retention.
type Config struct {
	// RetentionDays is how long finished jobs are kept. Zero keeps them
	// forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// Schedule is a standard cron expression. Empty disables the scheduler.
	// Default: "0 3 * * *" (daily at 3 AM)
	Schedule string `yaml:"schedule"`

	// ArchiveDir, when set, receives a JSON-lines file of every job (with its
	// results) before it is deleted.
	ArchiveDir string `yaml:"archive_dir"`
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{
		RetentionDays: 30,
		Schedule:      "0 3 * * *",
	}
}

// Pruner enforces the retention period on a store.
type Pruner struct {
	store  store.Store
	config Config
	now    func() time.Time
	logger *slog.Logger
}

// NewPruner creates a pruner.
func NewPruner(s store.Store, config Config, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:  s,
		config: config,
		now:    time.Now,
		logger: logger.With("component", "retention"),
	}
}

// Prune archives (if configured) and deletes expired jobs. It returns the
// number of jobs deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.RetentionDays <= 0 {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)

	if p.config.ArchiveDir != "" {
		archived, err := p.archive(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("archive before prune: %w", err)
		}
		if archived > 0 {
			p.logger.Info("archived expired jobs", "count", archived, "dir", p.config.ArchiveDir)
		}
	}

	deleted, err := p.store.DeleteJobsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if deleted > 0 {
		p.logger.Info("pruned expired jobs",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	} else {
		p.logger.Debug("no jobs pruned", "retention_days", p.config.RetentionDays)
	}
	return deleted, nil
}

type archiveRecord struct {
	Job     *audit.Job          `json:"job"`
	Results []audit.AuditResult `json:"results"`
}

// archive writes every expired job to one JSON-lines file.
func (p *Pruner) archive(ctx context.Context, cutoff time.Time) (int, error) {
	var expired []*audit.Job
	for _, status := range []audit.JobStatus{audit.JobCompleted, audit.JobFailed} {
		for offset := 0; ; {
			page, err := p.store.ListJobs(ctx, store.JobQuery{Status: status, Limit: 100, Offset: offset})
			if err != nil {
				return 0, err
			}
			for _, j := range page {
				if j.EndTime != nil && j.EndTime.Before(cutoff) {
					expired = append(expired, j)
				}
			}
			if len(page) < 100 {
				break
			}
			offset += len(page)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(p.config.ArchiveDir, 0o755); err != nil {
		return 0, err
	}
	name := filepath.Join(p.config.ArchiveDir, fmt.Sprintf("jobs-%s.jsonl", p.now().UTC().Format("20060102T150405Z")))
	f, err := os.Create(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, j := range expired {
		results, err := p.store.ListResults(ctx, j.ID)
		if err != nil {
			return 0, fmt.Errorf("results of job %s: %w", j.ID, err)
		}
		if err := enc.Encode(archiveRecord{Job: j, Results: results}); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return len(expired), f.Sync()
}
