package crystal

import (
	"fmt"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/config"
	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// New builds the Engine variant named by mode. ModeLocal (the default,
// used when mode is empty) wires s and embedder directly; ModeRemote
// ignores both and instead calls out to the host named by cfg's relay
// settings, treating them as this node's engine address since the
// config resolver defines no separate option for it.
func New(mode Mode, s *store.Store, embedder embedding.Client, cfg config.Config, now func() time.Time) (Engine, error) {
	switch mode {
	case ModeLocal, "":
		return NewLocal(s, embedder, cfg, now), nil
	case ModeRemote:
		if cfg.RelayURL == "" {
			return nil, fmt.Errorf("crystal: remote mode requires a relay URL")
		}
		return NewRemote(cfg.RelayURL, cfg.RelayToken), nil
	default:
		return nil, fmt.Errorf("crystal: unknown mode %q", mode)
	}
}
