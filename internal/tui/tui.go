// Package tui implements the interactive labwatch dashboard.
package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/iotlab-io/labwatch/internal/config"
	"github.com/iotlab-io/labwatch/internal/engine/logview"
	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
	"github.com/iotlab-io/labwatch/internal/telemetry"
)

// programRef is a shared reference to the tea.Program for goroutine sends.
// It's set after tea.NewProgram but before p.Run().
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) Set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Clear nils out the program reference, preventing post-exit sends.
func (r *programRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// Backend is the part of the lab API the dashboard uses.
type Backend interface {
	session.Backend
	logview.Source
	ListExperiments(ctx context.Context) ([]string, error)
}

// Deps are the services the dashboard is built on.
type Deps struct {
	Backend  Backend
	Config   *config.Manager
	Settings models.Settings
	Logger   zerolog.Logger

	// Phases is the live catalog. When PhasesPath is set the file is
	// watched and edits are swapped in while the dashboard runs.
	Phases     *phase.Store
	PhasesPath string

	SchedulerOptions []scheduler.Option
	TrackerOptions   []session.Option

	Telemetry *telemetry.Reporter

	// OnFinished is called once per finished run.
	OnFinished func(session.Snapshot)
}

// Run launches the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps) error {
	ref := &programRef{}
	model, err := NewModel(ctx, deps, ref)
	if err != nil {
		return err
	}
	defer model.svc.close()

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)

	// Store program reference for goroutine sends
	ref.Set(p)

	_, err = p.Run()
	ref.Clear()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
