package research

import (
	"fmt"

	"github.com/patenthound/patenthound/internal/config"
	"github.com/patenthound/patenthound/internal/research/mock"
	"github.com/patenthound/patenthound/internal/research/openai"
	"github.com/patenthound/patenthound/pkg/models"
)

// NewProvider constructs the appropriate research provider based on config.
// Called once at server startup.
func NewProvider(cfg config.ResearchConfig) (models.ResearchProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown research provider %q: must be one of openai, mock", cfg.Provider)
	}
}
