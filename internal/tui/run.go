package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"profrag/internal/service"
)

// ErrInterrupted is returned when the user quits the view mid-run.
var ErrInterrupted = errors.New("interrupted")

// RunFunc executes the ingestion, reporting progress through the callback.
type RunFunc func(ctx context.Context, progress service.ProgressFunc) (*service.Result, error)

// Run drives run in the background while the progress view is shown.
// Quitting the view cancels the run.
func Run(ctx context.Context, title string, run RunFunc, opts ...tea.ProgramOption) (*service.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(title), append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res, err := run(ctx, func(done, total int) {
			p.Send(ProgressMsg{Done: done, Total: total})
		})
		if err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{Result: res})
	}()

	final, err := p.Run()
	cancel()
	<-finished
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	m, ok := final.(Model)
	if !ok {
		return nil, ErrInterrupted
	}
	if m.Interrupted() {
		return nil, ErrInterrupted
	}
	res, runErr := m.Result()
	if res == nil && runErr == nil {
		return nil, ErrInterrupted
	}
	return res, runErr
}
