package cli

import (
	"fmt"
	"io"
	"sync"

	"tubegrab/batch"

	"github.com/charmbracelet/lipgloss"
)

// Printer renders task events as terminal lines.
type Printer struct {
	out io.Writer
	mu  sync.Mutex

	progress lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	failure  lipgloss.Style
	dim      lipgloss.Style
}

func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:      out,
		progress: r.NewStyle().Foreground(lipgloss.Color("#4ECDC4")),
		success:  r.NewStyle().Foreground(lipgloss.Color("#95E1A3")).Bold(true),
		warning:  r.NewStyle().Foreground(lipgloss.Color("#FFE66D")),
		failure:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		dim:      r.NewStyle().Foreground(lipgloss.Color("#6C757D")),
	}
}

func (p *Printer) OnProgress(s batch.Snapshot) {
	if s.Last == nil || s.State.Terminal() {
		return
	}

	var line string
	switch o := s.Last; o.Kind {
	case batch.Downloaded:
		line = p.success.Render("✓ ") + o.Path
	case batch.InvalidURL:
		line = p.warning.Render("✗ invalid URL ") + p.dim.Render(o.Item.String())
	case batch.VideoUnavailable:
		line = p.warning.Render("✗ unavailable ") + p.dim.Render(o.Item.String())
	case batch.TrackNotFound:
		line = p.warning.Render("✗ not found ") + p.dim.Render(o.Item.String())
	default:
		line = p.failure.Render("✗ failed ") + p.dim.Render(fmt.Sprintf("%s: %v", o.Item, o.Err))
	}
	p.println(fmt.Sprintf("%s %s", p.progress.Render(s.Status()), line))
}

func (p *Printer) OnComplete(s batch.Summary) {
	style := p.success
	if s.Count(batch.Downloaded) != s.Total {
		style = p.warning
	}
	p.println(style.Render(s.Status()))
	if s.Count(batch.Downloaded) != s.Total {
		p.println(p.dim.Render(s.Details()))
	}
}

func (p *Printer) OnError(err error) {
	p.println(p.failure.Render("error: " + err.Error()))
}

func (p *Printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}
