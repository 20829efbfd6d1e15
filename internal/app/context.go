package app

import (
	"context"
	"errors"
	"fmt"

	"draftline/internal/config"
	"draftline/internal/domain"
	"draftline/internal/repo"
)

// ResolveWorkspaceAndConfig determines the active workspace config, seeding
// the stored copy and the team roster on first use. A draftline.yml on disk
// wins over the stored copy and refreshes it.
func ResolveWorkspaceAndConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		if err := SyncConfig(ctx, r, fileCfg); err != nil {
			return nil, err
		}
		return fileCfg, nil
	}
	cfg, err := r.SingleWorkspaceConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := config.Default("default")
	if err := SyncConfig(ctx, r, seed); err != nil {
		return nil, fmt.Errorf("seed workspace config: %w", err)
	}
	return seed, nil
}

// SyncConfig stores the config and upserts its team roster in one
// transaction, so actors and their PINs always match the active config.
func SyncConfig(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.UpsertWorkspaceConfigTx(ctx, tx, cfg.Workspace.ID, cfg); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	for _, a := range cfg.Team.Actors {
		actor := domain.Actor{ID: a.ID, Name: a.Name, Role: domain.Role(a.Role)}
		if err := r.UpsertActor(ctx, tx, actor, repo.HashPIN(a.PIN)); err != nil {
			return fmt.Errorf("seed actor %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}
