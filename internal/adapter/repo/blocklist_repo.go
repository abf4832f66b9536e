package repo

import (
	"context"
	"time"

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/sqlinline"
)

// BlocklistRepositoryPG implements domain.Blocklist on PostgreSQL.
type BlocklistRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewBlocklistRepository creates a blocklist repository.
func NewBlocklistRepository(sql infra.SQLExecutor) *BlocklistRepositoryPG {
	return &BlocklistRepositoryPG{sql: sql}
}

// IsBlocked reports whether the hashed identity has an active block.
func (r *BlocklistRepositoryPG) IsBlocked(ctx context.Context, identityHash string) (bool, error) {
	var blocked bool
	if err := r.sql.QueryRow(ctx, sqlinline.QIsSourceBlocked, identityHash).Scan(&blocked); err != nil {
		return false, err
	}
	return blocked, nil
}

// Block records (or extends) a temporary block for the hashed identity.
func (r *BlocklistRepositoryPG) Block(ctx context.Context, identityHash, reason string, duration time.Duration) error {
	minutes := int(duration / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	_, err := r.sql.Exec(ctx, sqlinline.QBlockSource, identityHash, reason, minutes)
	return err
}

var _ domain.Blocklist = (*BlocklistRepositoryPG)(nil)
