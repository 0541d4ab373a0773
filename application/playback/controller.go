package playback

import (
	"log/slog"
	"sync"

	"macroplay-go/core/command"
	"macroplay-go/domain/macro"
)

// Controller processes playback commands serially against a single
// player. Hotkey listeners, the CLI, and a future GUI submit user
// intentions here instead of calling the player from their own
// goroutines.
type Controller struct {
	registry *macro.Registry
	player   *Player
	logger   *slog.Logger

	cmds chan command.Command
	wg   sync.WaitGroup
	once sync.Once
}

// NewController creates a controller over the given registry and player.
func NewController(registry *macro.Registry, player *Player, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		registry: registry,
		player:   player,
		logger:   logger,
		cmds:     make(chan command.Command, 16),
	}
}

// Start begins processing submitted commands.
func (c *Controller) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for cmd := range c.cmds {
			c.handle(cmd)
		}
	}()
}

// Stop drains pending commands and shuts the controller down. The
// player is left in whatever state the last command produced.
func (c *Controller) Stop() {
	c.once.Do(func() {
		close(c.cmds)
	})
	c.wg.Wait()
}

// Submit queues a command. Returns false when the queue is full; the
// caller decides whether dropping a user intention is acceptable.
func (c *Controller) Submit(cmd command.Command) bool {
	select {
	case c.cmds <- cmd:
		return true
	default:
		c.logger.Warn("command queue full, dropping", "command", cmd.CommandName())
		return false
	}
}

func (c *Controller) handle(cmd command.Command) {
	c.logger.Debug("handling command", "command", cmd.CommandName())

	switch cmd := cmd.(type) {
	case *command.StartPlayback:
		m := c.registry.Get(cmd.MacroName())
		if m == nil {
			c.logger.Error("unknown macro", "name", cmd.MacroName())
			return
		}
		if err := c.player.Start(m, StartOptions{StartIndex: cmd.StartIndex}); err != nil {
			c.logger.Error("start rejected", "macro", cmd.MacroName(), "error", err)
		}

	case *command.StopPlayback:
		c.player.Stop()

	case *command.PausePlayback:
		if err := c.player.Pause(); err != nil {
			c.logger.Warn("pause rejected", "macro", cmd.MacroName(), "error", err)
		}

	case *command.ResumePlayback:
		if err := c.player.Resume(); err != nil {
			c.logger.Warn("resume rejected", "macro", cmd.MacroName(), "error", err)
		}

	default:
		c.logger.Error("unhandled command", "command", cmd.CommandName())
	}
}
