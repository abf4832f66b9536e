package uploads

import (
	"context"

	"portraits/internal/domain"
	"portraits/internal/infra"
	"portraits/internal/sqlinline"
)

// ResolverPG maps owner-scoped upload ids to fetchable URLs via the uploads
// table maintained by the (out of scope) upload service.
type ResolverPG struct {
	sql infra.SQLExecutor
}

func NewResolver(sql infra.SQLExecutor) *ResolverPG {
	return &ResolverPG{sql: sql}
}

// Resolve returns the URL for an upload owned by ownerID.
func (r *ResolverPG) Resolve(ctx context.Context, ownerID, uploadID string) (string, error) {
	var url string
	if err := r.sql.QueryRow(ctx, sqlinline.QResolveUpload, uploadID, ownerID).Scan(&url); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return url, nil
}

var _ domain.UploadResolver = (*ResolverPG)(nil)
