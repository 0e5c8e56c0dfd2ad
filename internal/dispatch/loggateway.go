package dispatch

import (
	"context"
	"log/slog"
)

// LogGateway writes outbound messages to the log instead of a provider.
// The real provider client lives outside this engine.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) SendText(_ context.Context, recipient, text string) error {
	g.logger.Info("outbound text", "recipient", recipient, "text", text)
	return nil
}

func (g *LogGateway) SendQuestion(_ context.Context, recipient, text string, options []string, index int) error {
	g.logger.Info("outbound question", "recipient", recipient, "text", text, "options", options, "index", index)
	return nil
}
