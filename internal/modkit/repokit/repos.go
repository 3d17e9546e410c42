// Package repokit gives repos a home for the store seam types so service
// packages never import the store directly
package repokit

import (
	"github.com/ChrisPatten/haven-sub004/internal/platform/store"
)

type (
	// Queryer is the read and write surface SQL repos are bound to
	Queryer = store.RowQuerier

	// TxRunner adds transactional execution on top of Queryer
	TxRunner = store.TxRunner

	// Rows is a result set being iterated
	Rows = store.Rows

	// Row is a single-row result
	Row = store.Row

	// CommandTag reports what a write statement did
	CommandTag = store.CommandTag
)
