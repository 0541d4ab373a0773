package command

// StartPlayback requests that a macro starts playing.
type StartPlayback struct {
	basePlaybackCommand
	// StartIndex is the action index to resume from; 0 plays from the top.
	StartIndex int
}

func NewStartPlayback(macroName string, startIndex int) *StartPlayback {
	return &StartPlayback{
		basePlaybackCommand: basePlaybackCommand{macroName: macroName},
		StartIndex:          startIndex,
	}
}

func (c *StartPlayback) CommandName() string {
	return "StartPlayback"
}

// StopPlayback requests that the running macro stops.
type StopPlayback struct {
	basePlaybackCommand
	Reason string
}

func NewStopPlayback(macroName, reason string) *StopPlayback {
	return &StopPlayback{
		basePlaybackCommand: basePlaybackCommand{macroName: macroName},
		Reason:              reason,
	}
}

func (c *StopPlayback) CommandName() string {
	return "StopPlayback"
}

// PausePlayback requests that the running macro pauses. Paused time does
// not count against waits or timeline offsets.
type PausePlayback struct {
	basePlaybackCommand
}

func NewPausePlayback(macroName string) *PausePlayback {
	return &PausePlayback{basePlaybackCommand{macroName: macroName}}
}

func (c *PausePlayback) CommandName() string {
	return "PausePlayback"
}

// ResumePlayback requests that a paused macro resumes.
type ResumePlayback struct {
	basePlaybackCommand
}

func NewResumePlayback(macroName string) *ResumePlayback {
	return &ResumePlayback{basePlaybackCommand{macroName: macroName}}
}

func (c *ResumePlayback) CommandName() string {
	return "ResumePlayback"
}
