package notify

import (
	"context"
	"strings"

	"portraits/internal/domain"
	"portraits/internal/infra"
)

// GuestOwnerPrefix marks owner identities without an account; they cannot be
// notified and are skipped silently.
const GuestOwnerPrefix = "guest:"

// LogNotifier is the default Notifier: it records the completion event so an
// out-of-process mailer can pick it up. Delivery failures never block job
// finalization; the orchestrator only logs them.
type LogNotifier struct {
	logger infra.Logger
}

func NewLogNotifier(logger infra.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// GenerationComplete emits the completion notification for a non-guest owner.
func (n *LogNotifier) GenerationComplete(ctx context.Context, ownerID, jobID, viewURL string) error {
	if strings.HasPrefix(ownerID, GuestOwnerPrefix) {
		return nil
	}
	n.logger.Info().
		Str("owner_id", ownerID).
		Str("job_id", jobID).
		Str("view_url", viewURL).
		Msg("notify: generation complete")
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)
