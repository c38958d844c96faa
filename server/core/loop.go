package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// GameLoop serializes everything that mutates session state onto one
// goroutine: transport events, the host player's requests and ticks.
type GameLoop struct {
	server   *Server
	tickRate int
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewGameLoop(server *Server, tickRate int, clock clockwork.Clock, logger *zap.Logger) *GameLoop {
	if tickRate <= 0 {
		tickRate = 20
	}
	return &GameLoop{
		server:   server,
		tickRate: tickRate,
		clock:    clock,
		logger:   logger,
	}
}

func (g *GameLoop) Run(ctx context.Context) error {
	ticker := g.clock.NewTicker(time.Second / time.Duration(g.tickRate))
	defer ticker.Stop()

	g.logger.Info("game loop started", zap.Int("tickRate", g.tickRate))
	last := g.clock.Now()
	events := g.server.transport.Events()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("game loop stopped")
			return nil

		case err := <-g.server.listenErr:
			if err != nil {
				return fmt.Errorf("transport: %w", err)
			}
			// Listen returns nil once its context is done.
			<-ctx.Done()
			return nil

		case ev := <-events:
			g.server.Handle(ev)

		case msg := <-g.server.inbox:
			g.server.HandleLocal(msg)

		case <-ticker.Chan():
			now := g.clock.Now()
			g.server.Tick(now.Sub(last))
			last = now
		}
	}
}
