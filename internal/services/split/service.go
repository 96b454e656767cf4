// Package split implements the three split orchestrators: protocol-keyed
// dimensions and TVL splits, and the chain-keyed protocol split. Each
// orchestrator ranks entities by a terminal value, fetches full series for
// the top N, and reconciles the long tail into an Others bucket against an
// independently sourced total.
package split

import (
	"defilens/internal/adapters/config"
	"defilens/internal/adapters/upstream"
	"defilens/pkg/logger"
)

// Service orchestrates split requests over the upstream adapters.
type Service struct {
	client *upstream.Client
	lookup *CategoryLookup
	cfg    config.SplitConfig
	log    *logger.Logger
}

// NewService creates the split service.
func NewService(client *upstream.Client, lookup *CategoryLookup, cfg config.SplitConfig) *Service {
	return &Service{
		client: client,
		lookup: lookup,
		cfg:    cfg,
		log:    logger.Get().With("component", "split_service"),
	}
}
