package api

import (
	"github.com/rs/zerolog"

	"udp-monitor/internal/storage"
)

// API is the read-mostly HTTP projection over the message store. It
// only ever calls the store's operation contract, the same one the
// listener and scheduler use.
type API struct {
	Store         storage.Store
	RetentionDays float64 // default for POST /cleanup
	Logger        zerolog.Logger
}

func NewAPI(store storage.Store, retentionDays float64, logger zerolog.Logger) *API {
	return &API{
		Store:         store,
		RetentionDays: retentionDays,
		Logger:        logger.With().Str("component", "api").Logger(),
	}
}
