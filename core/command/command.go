// Package command defines the control commands accepted by the playback engine.
// Commands represent user intentions (hotkeys, CLI, a future GUI) and are
// processed serially by the engine's owner.
package command

// Command is the base interface for all commands.
type Command interface {
	// CommandName returns the name of the command for logging/debugging
	CommandName() string
}

// PlaybackCommand is a command that targets a specific macro run.
type PlaybackCommand interface {
	Command
	// MacroName returns the target macro name
	MacroName() string
}

// basePlaybackCommand provides common implementation for playback commands.
type basePlaybackCommand struct {
	macroName string
}

func (c *basePlaybackCommand) MacroName() string {
	return c.macroName
}
