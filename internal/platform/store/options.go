package store

import (
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
)

// Option tweaks a Store while Open assembles it
type Option func(*Store) error

// WithLogger routes subclient logging (slow queries, SQL tracing) through log
// instead of the package default
func WithLogger(log logger.Logger) Option {
	return func(s *Store) error {
		s.Log = log
		return nil
	}
}
