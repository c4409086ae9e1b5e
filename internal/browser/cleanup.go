package browser

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/ai-agent-for-browser-snapshot/internal/store"
)

const cleanupTimeout = 5 * time.Second

// RemoveOnClose drops the page's snapshot from st once s closes, so the
// store never outlives the page it describes.
func RemoveOnClose(s Session, st store.Store, logger zerolog.Logger) {
	s.OnClose(func(pageID string) {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := st.RemoveByPageID(ctx, pageID); err != nil {
			logger.Warn().Err(err).Str("page", pageID).Msg("remove snapshot of closed page")
			return
		}
		logger.Debug().Str("page", pageID).Msg("snapshot removed for closed page")
	})
}
