package agent

import (
	"github.com/codefionn/agentweb/internal/catalog"
	"github.com/codefionn/agentweb/internal/securemem"
)

// Config holds the connection parameters passed with every task submission.
// It is not persisted by the client.
type Config struct {
	Provider string
	Model    string
	APIKey   *securemem.String
	MaxSteps int
}

// Validate checks the provider/model pairing and the step bound. The API key
// is checked separately by ValidateConfig.
func (c Config) Validate() error {
	if err := catalog.CheckModel(c.Provider, c.Model); err != nil {
		return err
	}
	return catalog.CheckSteps(c.MaxSteps)
}
