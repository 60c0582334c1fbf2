package command

// Action is one of the closed set of motion commands the robot understands.
// The zero value is not valid; use Stop for the safe command.
type Action string

const (
	Forward  Action = "forward"
	Backward Action = "backward"
	Left     Action = "left"
	Right    Action = "right"
	Stop     Action = "stop"
)

var allowed = map[Action]bool{
	Forward:  true,
	Backward: true,
	Left:     true,
	Right:    true,
	Stop:     true,
}

// Valid reports whether a is one of the allowed motion commands.  Anything
// the policy service sends outside this set must be discarded, never
// executed.
func Valid(a Action) bool {
	return allowed[a]
}
