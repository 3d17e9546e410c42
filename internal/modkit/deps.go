package modkit

import (
	"github.com/ChrisPatten/haven-sub004/internal/modkit/repokit"
	"github.com/ChrisPatten/haven-sub004/internal/platform/config"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
)

// Deps is the shared wiring a module receives from main. Plain struct,
// no lifecycle; zero value works for tests that skip persistence
type Deps struct {
	Log logger.Logger
	Cfg config.Conf

	// PG is nil when run history persistence is disabled
	PG repokit.TxRunner
}
