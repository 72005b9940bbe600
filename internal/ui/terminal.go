package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"animewatch/internal/history"
	"animewatch/internal/navigator"
)

// Terminal prompts the user. On a TTY it uses fzf and the bubbletea menu;
// otherwise every prompt reads one line from its input.
type Terminal struct {
	in          io.Reader
	out         io.Writer
	reader      *bufio.Reader
	interactive bool
}

// NewTerminal creates a Terminal on stdin/stdout, using the interactive
// widgets only when stdin is a terminal.
func NewTerminal() *Terminal {
	t := NewLineTerminal(os.Stdin, os.Stdout)
	t.interactive = term.IsTerminal(int(os.Stdin.Fd()))
	return t
}

// NewLineTerminal creates a Terminal that always uses line prompts.
func NewLineTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out, reader: bufio.NewReader(in)}
}

// Interactive reports whether the fzf and menu widgets are in use.
func (t *Terminal) Interactive() bool { return t.interactive }

// Notify prints a message line.
func (t *Terminal) Notify(format string, args ...any) {
	fmt.Fprintf(t.out, format+"\n", args...)
}

// Query asks for a search string.
func (t *Terminal) Query(prompt string) (string, error) {
	if t.interactive && FzfAvailable() {
		return Input(prompt)
	}
	fmt.Fprintf(t.out, "%s: ", prompt)
	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", ErrCancelled
	}
	return line, nil
}

// Choose asks the user to pick one of items and returns its index.
func (t *Terminal) Choose(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, fmt.Errorf("no items to select from")
	}
	if t.interactive && FzfAvailable() {
		return Select(prompt, items)
	}

	for i, item := range items {
		fmt.Fprintf(t.out, "%3d) %s\n", i+1, sanitizeLine(item))
	}
	for {
		fmt.Fprintf(t.out, "%s [1-%d, 0 to cancel]: ", prompt, len(items))
		line, err := t.readLine()
		if err != nil {
			return -1, err
		}
		n, ok := parseIndex(line, 0, len(items))
		if !ok {
			fmt.Fprintln(t.out, "Invalid choice.")
			continue
		}
		if n == 0 {
			return -1, ErrCancelled
		}
		return n - 1, nil
	}
}

// Confirm asks a yes/no question; an empty answer means yes.
func (t *Terminal) Confirm(prompt string) (bool, error) {
	for {
		fmt.Fprintf(t.out, "%s (Y/n): ", prompt)
		line, err := t.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "", "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, "Invalid input. Please enter 'y' for yes or 'n' for no.")
	}
}

// ChooseEpisode lists the unwatched episodes and asks for the episode to
// start with. It returns 0 when the user wants to leave the title.
func (t *Terminal) ChooseEpisode(title string, unwatched []int, start, last int) (int, error) {
	fmt.Fprintln(t.out, titleStyle.Render(title))
	if len(unwatched) > 0 {
		fmt.Fprintf(t.out, "Unwatched episodes: %s\n", history.FormatEpisodes(unwatched))
	} else {
		fmt.Fprintf(t.out, "Episodes %d-%d available.\n", start, last)
	}

	for {
		fmt.Fprintf(t.out, "Enter the episode number you want to watch (%d-%d, 0 to exit): ", start, last)
		line, err := t.readLine()
		if err != nil {
			return 0, err
		}
		if line == "0" {
			return 0, nil
		}
		n, ok := parseIndex(line, start, last)
		if !ok {
			fmt.Fprintf(t.out, "Invalid episode number. Please enter a number between %d and %d.\n", start, last)
			continue
		}
		return n, nil
	}
}

// Menu shows the episode menu and returns the chosen action. End of input
// is treated as Quit.
func (t *Terminal) Menu(state MenuState) (navigator.Action, error) {
	if t.interactive {
		return runMenu(t.in, t.out, state)
	}

	fmt.Fprintf(t.out, "\n%s, episode %d (%d-%d)\n", state.Title, state.Episode, state.Start, state.Max)
	if state.Status != "" {
		fmt.Fprintln(t.out, state.Status)
	}
	fmt.Fprint(t.out, "[N]ext  [P]revious  [C]hange title  [Q]uit: ")
	line, err := t.readLine()
	if errors.Is(err, io.EOF) {
		return navigator.Quit, nil
	}
	if err != nil {
		return navigator.Unknown, err
	}
	return navigator.ParseAction(line), nil
}

// readLine returns the next trimmed input line. A final line without a
// newline is still returned; io.EOF is only reported when nothing is left.
func (t *Terminal) readLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// parseIndex parses s as an integer inside [lo, hi].
func parseIndex(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
