package board

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"loadboard/internal/orders"
	"loadboard/internal/reconcile"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiYellow = "\x1b[33m"
	clearHome  = "\x1b[H\x1b[2J"
)

// Options tune rendering.
type Options struct {
	// Color enables ANSI emphasis for the header and orders awaiting a
	// control check.
	Color bool
	// Crews maps crew ids to display names. Unknown ids are shown as-is.
	Crews map[string]string
	Now   func() time.Time
}

// Source is what Watch reads from; *reconcile.Engine satisfies it.
type Source interface {
	View() reconcile.View
	Changes() <-chan struct{}
}

// StateLabel returns a human label for the order's workflow position.
func StateLabel(item orders.Item) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(item.Label(), "_", " "))
}

// Render writes the whole board for view.
func Render(w io.Writer, view reconcile.View, opts Options) error {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	counts := view.Counts()
	header := fmt.Sprintf("Loadboard  queued %d  unqueued %d  %s",
		counts.Queued, counts.Unqueued, now().Format("15:04:05"))
	if opts.Color {
		header = ansiBold + header + ansiReset
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")

	if len(view.Queue) == 0 {
		b.WriteString("Queue is empty\n")
	} else {
		rows := make([][]string, 0, len(view.Queue))
		for _, item := range view.Queue {
			rows = append(rows, []string{
				strconv.Itoa(item.QueueRank),
				orderLabel(item, opts),
				StateLabel(item),
				crewName(item.CrewID, opts.Crews),
				controlLabel(item),
			})
		}
		b.WriteString(RenderTable(
			[]string{"#", "Order", "State", "Crew", "Control"},
			rows,
			[]Alignment{AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignLeft},
		))
		b.WriteString("\n")
	}

	if len(view.Others) > 0 {
		b.WriteString("\n")
		rows := make([][]string, 0, len(view.Others))
		for _, item := range view.Others {
			rows = append(rows, []string{
				orderLabel(item, opts),
				StateLabel(item),
				crewName(item.CrewID, opts.Crews),
				item.CreatedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		b.WriteString(RenderTable([]string{"Order", "State", "Crew", "Created"}, rows, nil))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Watch renders src on every change until ctx ends. On a terminal each frame
// replaces the previous one.
func Watch(ctx context.Context, w io.Writer, src Source, opts Options) error {
	redraw := IsTerminal(w)
	draw := func() error {
		if redraw {
			if _, err := io.WriteString(w, clearHome); err != nil {
				return err
			}
		}
		return Render(w, src.View(), opts)
	}
	if err := draw(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-src.Changes():
			if !redraw {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if err := draw(); err != nil {
				return err
			}
		}
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func orderLabel(item orders.Item, opts Options) string {
	label := item.Reference
	if label == "" {
		label = string(item.ID)
	}
	if opts.Color && item.PreparationStage == orders.StageControl && !item.Controlled {
		return ansiYellow + label + ansiReset
	}
	return label
}

func crewName(id string, crews map[string]string) string {
	if id == "" {
		return "-"
	}
	if name, ok := crews[id]; ok {
		return name
	}
	return id
}

func controlLabel(item orders.Item) string {
	if item.PreparationStage != orders.StageControl && !item.Controlled {
		return ""
	}
	if item.Controlled {
		return "yes"
	}
	return "no"
}
