package models

import "time"

// CommandType tags the variant of a low-level device command.
type CommandType string

const (
	CommandKeyEvent  CommandType = "key_event"
	CommandShell     CommandType = "shell"
	CommandTextInput CommandType = "text_input"
	CommandScreencap CommandType = "screencap"
)

// Default timeouts per command class. Screen capture is slower than shell
// round-trips; the liveness probe must fail fast.
const (
	DefaultCommandTimeout = 5 * time.Second
	ScreencapTimeout      = 8 * time.Second
	ProbeTimeout          = 3 * time.Second
)

// Command is one atomic request to a device. Exactly one of Keycode, Shell,
// or Text is set depending on Type; Screencap carries neither.
type Command struct {
	Type    CommandType
	Keycode string   // KEYCODE_* name for key_event
	Shell   []string // argv tail for shell
	Text    string   // raw text for text_input
	Timeout time.Duration
}

// KeyEvent builds a key-event command for a KEYCODE_* name.
func KeyEvent(keycode string) Command {
	return Command{Type: CommandKeyEvent, Keycode: keycode, Timeout: DefaultCommandTimeout}
}

// Shell builds a shell command from its argument vector.
func Shell(args ...string) Command {
	return Command{Type: CommandShell, Shell: args, Timeout: DefaultCommandTimeout}
}

// TextInput builds a text-entry command. Escaping happens at execution time.
func TextInput(text string) Command {
	return Command{Type: CommandTextInput, Text: text, Timeout: DefaultCommandTimeout}
}

// Screencap builds a screen-capture command returning PNG bytes.
func Screencap() Command {
	return Command{Type: CommandScreencap, Timeout: ScreencapTimeout}
}

// WithTimeout returns a copy of the command with an overridden timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

// Describe renders the command for logs and error context.
func (c Command) Describe() string {
	switch c.Type {
	case CommandKeyEvent:
		return "keyevent " + c.Keycode
	case CommandShell:
		s := "shell"
		for _, a := range c.Shell {
			s += " " + a
		}
		return s
	case CommandTextInput:
		return "input text"
	case CommandScreencap:
		return "screencap"
	}
	return string(c.Type)
}

// CommandResult is the outcome of a successfully executed command.
// Failures are reported as classified errors, not results.
type CommandResult struct {
	Output []byte
	Stderr string
}

// Text returns the stdout payload as a string.
func (r CommandResult) Text() string {
	return string(r.Output)
}
