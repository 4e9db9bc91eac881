package invites

import (
	"context"
	"fmt"

	"sliceit/internal/dbx"
)

type Repository struct {
	q dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

// MarkSent upserts one invite row per recipient with status 'sent'.
// Callers treat a failure here as non-fatal: the mail already went out.
func (r *Repository) MarkSent(ctx context.Context, groupID, inviterUID string, emails []string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO group_invites (group_id, email, invited_by, status, sent_at)
		SELECT $1, e, $2, 'sent', now()
		FROM unnest($3::text[]) AS e
		ON CONFLICT (group_id, email)
		DO UPDATE SET status = 'sent', sent_at = now()
	`, groupID, inviterUID, emails)
	if err != nil {
		return fmt.Errorf("mark invites sent: %w", err)
	}
	return nil
}
