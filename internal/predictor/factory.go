package predictor

import (
	"fmt"

	"github.com/danielpatrickdp/mdap-controller/internal/config"
	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// FromConfig builds the configured predictor. The returned close function
// releases any connection and is never nil.
func FromConfig(c config.Predictor) (mdap.Predictor, func() error, error) {
	noop := func() error { return nil }
	switch c.Kind {
	case "", "oracle":
		return hanoi.Oracle{}, noop, nil
	case "noisy":
		return &hanoi.Noisy{ErrorRate: c.ErrorRate, Seed: c.Seed}, noop, nil
	case "openai":
		p, err := NewOpenAI(OpenAIOptions{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			Temperature: c.Temperature,
			MaxTokens:   c.MaxTokens,
			Template:    c.PromptTemplate,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, noop, nil
	case "grpc":
		p, err := NewGRPC(c.Addr)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown predictor kind %q", mdap.ErrInvalidConfig, c.Kind)
	}
}
