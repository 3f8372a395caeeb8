// Package gitsync keeps a local checkout of a rule set repository current.
//
// A Repository clones the configured branch on first Sync and pulls on every
// later one. Rule sets are then served from RulesDir by a rules.FileProvider;
// Run polls the remote and calls back only when a rule file changed, so the
// provider reloads once per relevant commit.
//
//	repo, err := gitsync.New(cfg, logger)
//	if err != nil {
//		return err
//	}
//	if _, err := repo.Sync(ctx); err != nil {
//		return err
//	}
//	provider := rules.NewFileProvider(rules.FileProviderConfig{Dir: repo.RulesDir()}, logger)
//	go repo.Run(ctx, func(*gitsync.SyncResult) { _ = provider.Reload() })
package gitsync
