// Package acp implements the subprocess-backed provider: one managed
// process per agent id, speaking the Agent Client Protocol over stdio via
// github.com/coder/acp-go-sdk. It handles process lifecycle (spawn, pipe
// wiring, graceful-then-forced shutdown) and the wire-level session driver
// (initialize, session/new, per-turn mode selection, prompt streaming).
package acp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/acp-go-sdk"
	"github.com/routa-dev/routa/internal/common/logger"
	"go.uber.org/zap"
)

// Status is the subprocess lifecycle state.
type Status string

const shutdownGrace = 5 * time.Second

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Preset is the opaque per-provider preset record the core receives from
// external configuration: command, args, env, and tool policy.
type Preset struct {
	Command      string
	Args         []string
	Env          []string
	AutoApprove  bool
	AllowedTools []string
	WorkDir      string
}

// process owns one subprocess, its ACP connection, and session state for a
// single agentId. Only one turn may be in flight at a time (turnMu).
type process struct {
	cfg    Preset
	logger *logger.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	status atomic.Value // Status

	conn      *acp.ClientSideConnection
	client    *clientAdapter
	sessionID acp.SessionId
	presetID  string
	createdAt time.Time

	turnMu sync.Mutex // enforces a single in-flight turn per agent

	wg     sync.WaitGroup
	doneCh chan struct{}
}

func newProcess(cfg Preset, log *logger.Logger) *process {
	p := &process{cfg: cfg, logger: log, createdAt: time.Now().UTC()}
	p.status.Store(StatusStopped)
	return p
}

func (p *process) Status() Status { return p.status.Load().(Status) }

// spawn starts the subprocess and completes the ACP handshake: initialize,
// then session/new. Spawn is bounded by the caller's context.
func (p *process) spawn(ctx context.Context, cwd string, mcpServers []acp.McpServer) error {
	p.status.Store(StatusStarting)

	if p.cfg.Command == "" {
		p.status.Store(StatusError)
		return fmt.Errorf("no agent command configured")
	}

	// Deliberately not exec.CommandContext: a provider-turn context ending
	// must not kill a subprocess that outlives the turn.
	p.cmd = exec.Command(p.cfg.Command, p.cfg.Args...)
	p.cmd.Dir = p.cfg.WorkDir
	p.cmd.Env = p.cfg.Env

	var err error
	if p.stdin, err = p.cmd.StdinPipe(); err != nil {
		p.status.Store(StatusError)
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if p.stdout, err = p.cmd.StdoutPipe(); err != nil {
		p.status.Store(StatusError)
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if p.stderr, err = p.cmd.StderrPipe(); err != nil {
		p.status.Store(StatusError)
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		p.status.Store(StatusError)
		return fmt.Errorf("start agent: %w", err)
	}

	p.doneCh = make(chan struct{})
	p.wg.Add(2)
	go p.drainStderr()
	go p.waitForExit()

	p.client = newClientAdapter(p.logger, p.cfg.WorkDir, p.cfg.AutoApprove)
	p.conn = acp.NewClientSideConnection(p.client, p.stdin, p.stdout)

	initResp, err := p.conn.Initialize(ctx, acp.InitializeRequest{
		ProtocolVersion: acp.ProtocolVersionNumber,
		ClientInfo:      &acp.Implementation{Name: "routa", Version: "1.0.0"},
	})
	if err != nil {
		p.status.Store(StatusError)
		return fmt.Errorf("acp initialize: %w", err)
	}

	sessResp, err := p.conn.NewSession(ctx, acp.NewSessionRequest{
		Cwd:        p.cfg.WorkDir,
		McpServers: mcpServers,
	})
	if err != nil {
		p.status.Store(StatusError)
		return fmt.Errorf("acp session/new: %w", err)
	}
	p.sessionID = sessResp.SessionId

	_ = initResp // the agent's advertised capabilities are not consulted
	p.status.Store(StatusRunning)
	p.logger.Info("acp subprocess started", zap.Int("pid", p.cmd.Process.Pid))
	return nil
}

func (p *process) drainStderr() {
	defer p.wg.Done()
	scanner := bufio.NewScanner(p.stderr)
	for scanner.Scan() {
		p.logger.Debug("acp stderr", zap.String("line", scanner.Text()))
	}
}

func (p *process) waitForExit() {
	defer p.wg.Done()
	defer close(p.doneCh)
	err := p.cmd.Wait()
	if err != nil {
		p.logger.Info("acp subprocess exited with error", zap.Error(err))
	}
	if p.Status() != StatusStopping {
		p.status.Store(StatusStopped)
	}
}

// stop gracefully closes stdin, waits up to ctx's deadline, then force-kills.
func (p *process) stop(ctx context.Context) {
	if p.Status() == StatusStopped {
		return
	}
	p.status.Store(StatusStopping)
	if p.stdin != nil {
		_ = p.stdin.Close()
	}

	select {
	case <-p.doneCh:
	case <-ctx.Done():
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	case <-time.After(5 * time.Second):
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	}
	p.status.Store(StatusStopped)
}

// alive reports whether the subprocess is present and running, used by
// IsHealthy.
func (p *process) alive() bool {
	return p.Status() == StatusRunning
}
