// Package navigator implements the episode menu state machine. It never
// performs side effects; terminal choices are returned as tagged results for
// the caller to act on.
package navigator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRange is returned when the episode range is empty.
var ErrInvalidRange = errors.New("invalid episode range")

// Action is a user choice in the episode menu.
type Action int

const (
	Unknown Action = iota
	Next
	Previous
	ChangeTitle
	Quit
)

func (a Action) String() string {
	switch a {
	case Next:
		return "next"
	case Previous:
		return "previous"
	case ChangeTitle:
		return "change title"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// ParseAction maps menu input to an Action. Anything unrecognized is Unknown.
func ParseAction(input string) Action {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "n", "next":
		return Next
	case "p", "prev", "previous":
		return Previous
	case "c", "change":
		return ChangeTitle
	case "q", "quit":
		return Quit
	default:
		return Unknown
	}
}

// Kind tags a navigation Result.
type Kind int

const (
	// Continue means play Result.Episode.
	Continue Kind = iota
	// Change means tear down playback and pick another title.
	Change
	// Exit means tear down playback and stop.
	Exit
)

func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Change:
		return "change title"
	case Exit:
		return "quit"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Result is the outcome of applying one action.
type Result struct {
	Kind    Kind
	Episode int
	// Boundary is set when Next or Previous could not move past the range.
	Boundary bool
	// Reprompt is set for Unknown input; the state is unchanged.
	Reprompt bool
}

// State is the current position inside [Start, Max].
type State struct {
	Start   int
	Current int
	Max     int
}

// Navigator moves through a title's episodes.
type Navigator struct {
	state State
}

// New creates a Navigator over [start, last] positioned at current, which is
// clamped into the range.
func New(start, current, last int) (*Navigator, error) {
	if start > last {
		return nil, fmt.Errorf("%w: start %d after max %d", ErrInvalidRange, start, last)
	}
	current = min(max(current, start), last)
	return &Navigator{state: State{Start: start, Current: current, Max: last}}, nil
}

// State returns a copy of the current state.
func (n *Navigator) State() State { return n.state }

// Current returns the current episode.
func (n *Navigator) Current() int { return n.state.Current }

// Apply performs one transition.
func (n *Navigator) Apply(a Action) Result {
	switch a {
	case Next:
		if n.state.Current < n.state.Max {
			n.state.Current++
			return Result{Kind: Continue, Episode: n.state.Current}
		}
		return Result{Kind: Continue, Episode: n.state.Current, Boundary: true}
	case Previous:
		if n.state.Current > n.state.Start {
			n.state.Current--
			return Result{Kind: Continue, Episode: n.state.Current}
		}
		return Result{Kind: Continue, Episode: n.state.Current, Boundary: true}
	case ChangeTitle:
		return Result{Kind: Change, Episode: n.state.Current}
	case Quit:
		return Result{Kind: Exit, Episode: n.state.Current}
	default:
		return Result{Kind: Continue, Episode: n.state.Current, Reprompt: true}
	}
}
