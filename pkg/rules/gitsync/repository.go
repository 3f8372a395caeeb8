package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"mercator-hq/auditor/pkg/rules"
)

// Commit describes the checked-out revision.
type Commit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Branch    string    `json:"branch"`
}

// SyncResult is the outcome of one Sync.
type SyncResult struct {
	FromSHA string
	ToSHA   string

	// Cloned is set when this Sync created the checkout.
	Cloned bool

	// ChangedRuleFiles are the rule files under Path touched between
	// FromSHA and ToSHA, relative to the repository root.
	ChangedRuleFiles []string
}

// Changed reports whether rule sets need reloading.
func (r *SyncResult) Changed() bool {
	return r.Cloned || len(r.ChangedRuleFiles) > 0
}

// Repository is a local checkout of the rule repository.
type Repository struct {
	config Config
	auth   transport.AuthMethod
	logger *slog.Logger

	mu   sync.Mutex
	repo *gogit.Repository
}

// New validates cfg and prepares credentials. No network access happens
// until Sync.
func New(cfg Config, logger *slog.Logger) (*Repository, error) {
	if !cfg.Enabled() {
		return nil, errors.New("gitsync: repository URL cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gitsync: %w", err)
	}
	cfg.applyDefaults()
	auth, err := authMethod(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("gitsync: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		config: cfg,
		auth:   auth,
		logger: logger.With("component", "rules.gitsync", "repository", cfg.Repository),
	}, nil
}

// RulesDir is the directory a rules.FileProvider should serve.
func (r *Repository) RulesDir() string {
	return filepath.Join(r.config.LocalPath, r.config.Path)
}

// Sync clones the repository, or opens an existing checkout, on first use
// and pulls afterwards.
func (r *Repository) Sync(ctx context.Context) (*SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if r.repo == nil {
		cloned, err := r.open(ctx)
		if err != nil {
			return nil, err
		}
		if cloned {
			head, err := r.headSHA()
			if err != nil {
				return nil, err
			}
			r.logger.Info("rule repository cloned", "branch", r.config.Branch, "commit", head)
			return &SyncResult{ToSHA: head, Cloned: true}, nil
		}
	}
	return r.pull(ctx)
}

// open clones into LocalPath, or opens it when a checkout already exists.
func (r *Repository) open(ctx context.Context) (cloned bool, err error) {
	if _, err := os.Stat(filepath.Join(r.config.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.config.LocalPath)
		if err != nil {
			return false, fmt.Errorf("failed to open existing checkout: %w", err)
		}
		r.repo = repo
		return false, nil
	}
	if err := os.MkdirAll(r.config.LocalPath, 0o755); err != nil {
		return false, fmt.Errorf("failed to create checkout directory: %w", err)
	}
	repo, err := gogit.PlainCloneContext(ctx, r.config.LocalPath, false, &gogit.CloneOptions{
		URL:           r.config.Repository,
		Auth:          r.auth,
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  true,
		Depth:         r.config.Depth,
	})
	if err != nil {
		return false, fmt.Errorf("failed to clone rule repository: %w", err)
	}
	r.repo = repo
	return true, nil
}

func (r *Repository) pull(ctx context.Context) (*SyncResult, error) {
	from, err := r.headSHA()
	if err != nil {
		return nil, err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  true,
		Auth:          r.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("failed to pull rule repository: %w", err)
	}
	to, err := r.headSHA()
	if err != nil {
		return nil, err
	}

	res := &SyncResult{FromSHA: from, ToSHA: to}
	if from == to {
		return res, nil
	}
	files, err := r.changedFiles(from, to)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if r.isRuleFile(f) {
			res.ChangedRuleFiles = append(res.ChangedRuleFiles, f)
		}
	}
	r.logger.Info("rule repository updated",
		"from", shortSHA(from),
		"to", shortSHA(to),
		"changed_rule_files", len(res.ChangedRuleFiles),
	)
	return res, nil
}

func (r *Repository) headSHA() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// changedFiles lists paths that differ between two commits. Deleted files
// are reported by their old path.
func (r *Repository) changedFiles(from, to string) ([]string, error) {
	tree := func(sha string) (*object.Tree, error) {
		c, err := r.repo.CommitObject(plumbing.NewHash(sha))
		if err != nil {
			return nil, fmt.Errorf("failed to get commit %s: %w", shortSHA(sha), err)
		}
		return c.Tree()
	}
	fromTree, err := tree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := tree(to)
	if err != nil {
		return nil, err
	}
	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}
	files := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.To.Name != "" {
			files = append(files, ch.To.Name)
		} else {
			files = append(files, ch.From.Name)
		}
	}
	return files, nil
}

// isRuleFile reports whether a repository-relative path is a rule set file
// inside Path. Git paths always use forward slashes.
func (r *Repository) isRuleFile(p string) bool {
	dir := path.Clean(filepath.ToSlash(r.config.Path))
	if dir != "." && !strings.HasPrefix(p, dir+"/") {
		return false
	}
	if strings.HasPrefix(path.Base(p), ".") {
		return false
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range rules.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Head returns the checked-out commit.
func (r *Repository) Head() (*Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return nil, errors.New("repository not synced")
	}
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	c, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return &Commit{
		SHA:       c.Hash.String(),
		Author:    c.Author.Name,
		Timestamp: c.Author.When,
		Message:   strings.TrimSpace(c.Message),
		Branch:    r.config.Branch,
	}, nil
}

// Run syncs every PollInterval until ctx is done and calls onChange after
// each sync that touched rule files. Failed pulls are logged and retried on
// the next tick; the checkout keeps its last good revision.
func (r *Repository) Run(ctx context.Context, onChange func(*SyncResult)) {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	r.logger.Info("polling rule repository", "interval", r.config.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := r.Sync(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error("rule repository sync failed", "error", err)
				}
				continue
			}
			if res.Changed() {
				onChange(res)
			}
		}
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
