package runner

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Summary counts what a run did.
type Summary struct {
	Mode         string
	Categories   int
	Pages        int
	Found        int
	Written      int
	Failed       int
	ImagesSaved  int
	ImagesFailed int
	Files        []string
	Duration     time.Duration

	start time.Time
}

func newSummary(mode string) *Summary {
	return &Summary{Mode: mode, start: time.Now()}
}

func (s *Summary) finish() {
	s.Duration = time.Since(s.start)
}

func (s *Summary) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("bookscrape " + s.Mode)

	t.AppendRows([]table.Row{
		{"Categories", s.Categories},
		{"Listing pages", s.Pages},
		{"Products found", s.Found},
		{"Products written", s.Written},
		{"Products failed", s.Failed},
		{"Images saved", s.ImagesSaved},
		{"Images failed", s.ImagesFailed},
		{"Duration", s.Duration.Round(time.Millisecond)},
	})
	t.AppendSeparator()
	for _, f := range s.Files {
		t.AppendRow(table.Row{"File", f})
	}
	t.Render()
}

type progressBoard struct {
	pw progress.Writer
}

// newProgressBoard starts rendering trackers to w. A nil board hands out
// trackers that are never drawn.
func newProgressBoard(w io.Writer) *progressBoard {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Percentage = true

	go pw.Render()
	// Stop is only safe once rendering has started
	for !pw.IsRenderInProgress() {
		time.Sleep(time.Millisecond)
	}
	return &progressBoard{pw: pw}
}

func (b *progressBoard) track(message string, total int) *progress.Tracker {
	t := &progress.Tracker{Message: message, Total: int64(total), Units: progress.UnitsDefault}
	if b != nil {
		b.pw.AppendTracker(t)
	}
	return t
}

func (b *progressBoard) stop() {
	if b == nil {
		return
	}
	b.pw.Stop()
	for b.pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}
