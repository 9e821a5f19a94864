package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hexview/internal/hexdump"
)

// Focus targets, in Tab order.
const (
	focusRowBytes = iota
	focusColBytes
	focusOffset
	focusStrip
	focusDump
	focusCount
)

// toolbar holds the option inputs above the dump pane.
type toolbar struct {
	inputs [3]textinput.Model
	strip  bool
	focus  int
}

func newToolbar() toolbar {
	var tb toolbar
	labels := [3]string{"row ", "col ", "offset "}
	for i := range tb.inputs {
		ti := textinput.New()
		ti.Prompt = labels[i]
		ti.CharLimit = 12
		ti.Width = 8
		tb.inputs[i] = ti
	}
	tb.focus = focusDump
	tb.set(hexdump.DefaultOptions())
	return tb
}

// set loads opts into the inputs.
func (tb *toolbar) set(opts hexdump.Options) {
	tb.inputs[focusRowBytes].SetValue(strconv.Itoa(opts.RowBytes))
	tb.inputs[focusColBytes].SetValue(strconv.Itoa(opts.ColBytes))
	tb.inputs[focusOffset].SetValue(strconv.FormatInt(opts.Offset, 10))
	tb.strip = opts.StripOffsets
}

// options parses the inputs. Unparseable fields fall back to the default
// for that field.
func (tb toolbar) options() hexdump.Options {
	opts := hexdump.Options{
		RowBytes:     parseField(tb.inputs[focusRowBytes].Value()),
		ColBytes:     parseField(tb.inputs[focusColBytes].Value()),
		Offset:       int64(parseField(tb.inputs[focusOffset].Value())),
		StripOffsets: tb.strip,
	}
	return opts.Normalize()
}

func parseField(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}

// editing reports whether a text input has focus.
func (tb toolbar) editing() bool {
	return tb.focus < focusStrip
}

func (tb *toolbar) setFocus(target int) tea.Cmd {
	tb.focus = (target%focusCount + focusCount) % focusCount
	var cmd tea.Cmd
	for i := range tb.inputs {
		if i == tb.focus {
			cmd = tb.inputs[i].Focus()
		} else {
			tb.inputs[i].Blur()
		}
	}
	return cmd
}

func (tb *toolbar) next() tea.Cmd { return tb.setFocus(tb.focus + 1) }
func (tb *toolbar) prev() tea.Cmd { return tb.setFocus(tb.focus - 1) }

// update forwards a key to the focused input.
func (tb *toolbar) update(msg tea.Msg) tea.Cmd {
	if !tb.editing() {
		return nil
	}
	var cmd tea.Cmd
	tb.inputs[tb.focus], cmd = tb.inputs[tb.focus].Update(msg)
	return cmd
}

func (tb toolbar) view(theme Theme) string {
	parts := make([]string, 0, 4)
	for i, in := range tb.inputs {
		style := theme.Field
		if i == tb.focus {
			style = theme.FieldFocused
		}
		parts = append(parts, style.Render(in.View()))
	}

	box := "[ ]"
	if tb.strip {
		box = "[x]"
	}
	style := theme.Label
	if tb.focus == focusStrip {
		style = theme.FieldFocused
	}
	parts = append(parts, style.Render(box+" strip offsets"))

	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, "  "))
}
