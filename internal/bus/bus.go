package bus

import (
	"fmt"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// New creates a new event bus based on configuration.
// Community tier: in-process channels. Pro tier: NATS.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported bus type: %s", cfg.Type)
	}
}
