// Package insights synthesizes the conceptual meeting-insights reply the
// relay answers on behalf of a room. The payload is opaque to the routing
// layer; clients treat it as a server-generated summary.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/intellimeet/signal-server/pkg/protocol"
	"github.com/intellimeet/signal-server/pkg/variables"
)

type Service struct {
	logger *slog.Logger
	delay  time.Duration
}

type NewServiceParams struct {
	fx.In

	Logger *slog.Logger
}

func NewService(params NewServiceParams) *Service {
	delayMs, err := variables.ParseInt(variables.Env(
		variables.SIGNAL_INSIGHTS_DELAY_MS,
		variables.SIGNAL_INSIGHTS_DELAY_MS_DEFAULT,
	))
	if err != nil || delayMs < 0 {
		delayMs = 0
	}

	return &Service{
		logger: params.Logger,
		delay:  time.Duration(delayMs) * time.Millisecond,
	}
}

// Generate produces the synthesized insights payload for one request.
// It blocks for the configured synthesis delay unless ctx ends first.
func (s *Service) Generate(ctx context.Context, roomID, username string) protocol.InsightsData {
	s.logger.Info("insights requested",
		slog.String("room", roomID),
		slog.String("username", username))

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	tag := uuid.NewString()[:6]
	return protocol.InsightsData{
		Summary: fmt.Sprintf(
			"This is a conceptual AI summary for room %s, requested by %s at %s.",
			roomID, username, tag),
		ActionItems: []string{
			fmt.Sprintf("Conceptual Action 1 for %s", username),
			"Conceptual Action 2 (general)",
		},
		Sentiment: "Positive (Conceptual)",
	}
}
