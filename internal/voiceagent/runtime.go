package voiceagent

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/voicepeer/internal/voiceagent/hub"
	"github.com/autopeer-io/voicepeer/internal/voiceagent/server"
	"github.com/autopeer-io/voicepeer/pkg/log"
)

// Runtime lives for the whole process. It owns the store, the drivers, the
// status mirror and the status server, and runs one Agent at a time.
// Reboot replaces the Agent without leaving the process.
type Runtime struct {
	cfg       *Config
	platform  *Platform
	hub       *hub.Hub
	server    *server.Server
	agentOpts []AgentOption

	mu      sync.RWMutex
	current *Agent
	boots   int

	reboot chan struct{}
}

var _ server.Device = (*Runtime)(nil)

// NewRuntime assembles a runtime. h may be nil when no broker is configured.
func NewRuntime(cfg *Config, p *Platform, h *hub.Hub, opts ...AgentOption) *Runtime {
	r := &Runtime{
		cfg:       cfg,
		platform:  p,
		hub:       h,
		agentOpts: opts,
		reboot:    make(chan struct{}, 1),
	}
	r.server = server.NewServer(cfg.HttpOptions, r)
	return r
}

// Run serves until ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	defer func() {
		if err := r.platform.Settings.Store().Close(); err != nil {
			log.Error(err, "Failed to close store")
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.server.Start(ctx) })
	if r.hub != nil {
		g.Go(func() error {
			// A missing broker must not keep the device from booting.
			if err := r.hub.Start(ctx); err != nil {
				log.Warn("Status mirror unavailable", "err", err.Error())
			}
			<-ctx.Done()
			r.hub.Stop()
			return nil
		})
	}
	g.Go(func() error { return r.runAgents(ctx) })

	return g.Wait()
}

func (r *Runtime) runAgents(ctx context.Context) error {
	for {
		agent := r.newAgent()

		agentCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() { errCh <- agent.Run(agentCtx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			return nil
		case <-r.reboot:
			log.Info("Rebooting agent")
			cancel()
			<-errCh
		case err := <-errCh:
			cancel()
			return err
		}
	}
}

func (r *Runtime) newAgent() *Agent {
	agent := NewAgent(r.platform, r.cfg, r.Reboot, r.agentOpts...)
	if r.hub != nil {
		r.hub.SetCommandHandler(agent.HandleRemoteCommands)
	}

	r.mu.Lock()
	r.current = agent
	r.boots++
	r.mu.Unlock()
	return agent
}

// Reboot asks the runtime to replace the running agent. It never blocks.
func (r *Runtime) Reboot() {
	select {
	case r.reboot <- struct{}{}:
	default:
	}
}

// Current returns the running agent, or nil before the first boot.
func (r *Runtime) Current() *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Boots counts agents started by this runtime.
func (r *Runtime) Boots() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.boots
}

func (r *Runtime) Status() (server.Status, error) {
	a := r.Current()
	if a == nil {
		return server.Status{}, server.ErrNotRunning
	}
	return a.Status(), nil
}

func (r *Runtime) ToggleChat() error {
	a := r.Current()
	if a == nil {
		return server.ErrNotRunning
	}
	a.Schedule(a.ToggleChat)
	return nil
}
