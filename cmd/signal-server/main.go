package main

import (
	"go.uber.org/fx"

	"github.com/intellimeet/signal-server/internal/insights"
	"github.com/intellimeet/signal-server/internal/room"
	"github.com/intellimeet/signal-server/pkg/protocol"
	"github.com/intellimeet/signal-server/pkg/service"
)

func main() {
	fx.New(
		fx.Provide(
			room.NewService,
			room.NewNotifier,
			insights.NewService,

			protocol.AsHttpController(room.NewSignalController),
		),

		service.LoggerModule,
		service.HttpModule,
	).Run()
}
