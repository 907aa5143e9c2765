package procman

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/webforge-labs/webforge/pkg/logbus"
	"github.com/webforge-labs/webforge/pkg/workspace"
)

var (
	// ErrBusy indicates the workspace is mid-transition (installing,
	// starting, or stopping) and cannot accept the request yet.
	ErrBusy = errors.New("workspace is busy")
	// ErrNotInitialized indicates the workspace has no project to run.
	ErrNotInitialized = errors.New("workspace is not initialized")
	// ErrShuttingDown indicates the supervisor no longer accepts starts.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)

// State of one workspace's dev server.
type State string

const (
	StatePreparing State = "preparing"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
)

// Status is a point-in-time view of one workspace's dev server.
type Status struct {
	Running   bool       `json:"running"`
	Port      int        `json:"port,omitempty"`
	State     State      `json:"state,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Options tune the supervisor's external commands and timing.
type Options struct {
	InstallCommand string        // e.g. "npm install"
	DevCommand     string        // e.g. "npm run dev -- --port {port} --host"
	InstallTimeout time.Duration // bound on the synchronous install step
	StopGrace      time.Duration // graceful-signal window before SIGKILL
}

// process tracks one workspace's child through its lifecycle. The entry
// lives in the supervisor map from the moment a Start claims the workspace
// until the exit handler finishes reaping, which is what serializes
// transitions per workspace.
type process struct {
	appID     int64
	state     State
	port      int
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{} // closed once the exit handler completes
}

// Supervisor runs at most one dev server per workspace and captures its
// output into the log bus.
type Supervisor struct {
	alloc  *Allocator
	bus    *logbus.Bus
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	procs   map[int64]*process
	stopped bool
	wg      sync.WaitGroup // in-flight exit handlers
}

// NewSupervisor wires a supervisor to its port allocator and log bus.
func NewSupervisor(alloc *Allocator, bus *logbus.Bus, opts Options) *Supervisor {
	if opts.InstallTimeout <= 0 {
		opts.InstallTimeout = 120 * time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	return &Supervisor{
		alloc:  alloc,
		bus:    bus,
		opts:   opts,
		logger: slog.Default().With("component", "supervisor"),
		procs:  make(map[int64]*process),
	}
}

// Start brings the workspace's dev server up and returns its leased port.
// If the server is already running the existing port is returned; a
// workspace mid-transition fails with ErrBusy. The install step (when
// node_modules is absent) runs synchronously within ctx.
func (s *Supervisor) Start(ctx context.Context, userID, appID int64, root string) (int, error) {
	// 1. Claim the workspace or bail out.
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, ErrShuttingDown
	}
	if existing, ok := s.procs[appID]; ok {
		if existing.state == StateRunning {
			port := existing.port
			s.mu.Unlock()
			return port, nil
		}
		s.mu.Unlock()
		return 0, ErrBusy
	}
	p := &process{appID: appID, state: StatePreparing, done: make(chan struct{})}
	s.procs[appID] = p
	s.mu.Unlock()

	port, err := s.start(ctx, p, userID, appID, root)
	if err != nil {
		s.mu.Lock()
		delete(s.procs, appID)
		s.mu.Unlock()
		close(p.done)
		return 0, err
	}
	return port, nil
}

// start performs the transition claimed by Start: marker check, install,
// port lease, spawn, pipe capture, exit handler.
func (s *Supervisor) start(ctx context.Context, p *process, userID, appID int64, root string) (int, error) {
	logger := s.logger.With("user_id", userID, "app_id", appID)

	// 2. A workspace without the project marker has nothing to run.
	if _, err := os.Stat(filepath.Join(root, workspace.MarkerFile)); err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotInitialized
		}
		return 0, fmt.Errorf("failed to inspect workspace: %w", err)
	}

	// 3. Install dependencies when node_modules is missing.
	if _, err := os.Stat(filepath.Join(root, "node_modules")); os.IsNotExist(err) {
		s.publishSystem(appID, "Installing dependencies...", false)
		if err := s.runInstall(ctx, appID, root); err != nil {
			s.publishSystem(appID, err.Error(), true)
			logger.Error("Dependency install failed", "error", err)
			return 0, err
		}
		s.publishSystem(appID, "Dependencies installed", false)
	}

	// 4. Lease a port and spawn the dev server in its own process group so
	// the whole npm/vite tree can be signaled together.
	port, err := s.alloc.Acquire()
	if err != nil {
		return 0, err
	}

	argv := splitCommand(s.opts.DevCommand, port)
	if len(argv) == 0 {
		s.alloc.Release(port)
		return 0, fmt.Errorf("invalid dev command %q", s.opts.DevCommand)
	}

	s.mu.Lock()
	p.state = StateStarting
	s.mu.Unlock()
	s.publishSystem(appID, fmt.Sprintf("Starting dev server on port %d...", port), false)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(port))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.alloc.Release(port)
		return 0, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.alloc.Release(port)
		return 0, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.alloc.Release(port)
		s.publishSystem(appID, "Failed to start dev server: "+err.Error(), true)
		return 0, fmt.Errorf("failed to start dev server: %w", err)
	}

	// 5. Record the lease. The workspace counts as RUNNING only now that a
	// live handle exists.
	now := time.Now()
	s.mu.Lock()
	p.cmd = cmd
	p.port = port
	p.state = StateRunning
	p.startedAt = now
	s.mu.Unlock()

	s.wg.Add(1)
	go s.reap(p, stdout, stderr)

	s.publishSystem(appID, fmt.Sprintf("Dev server running on port %d", port), false)
	logger.Info("Dev server started", "port", port, "pid", cmd.Process.Pid)
	return port, nil
}

// runInstall executes the install command synchronously, streaming its
// output into the log bus. The context bounds it with the install timeout;
// on cancellation the whole install process group is killed.
func (s *Supervisor) runInstall(ctx context.Context, appID int64, root string) error {
	argv := strings.Fields(s.opts.InstallCommand)
	if len(argv) == 0 {
		return fmt.Errorf("invalid install command %q", s.opts.InstallCommand)
	}

	ictx, cancel := context.WithTimeout(ctx, s.opts.InstallTimeout)
	defer cancel()

	cmd := exec.CommandContext(ictx, argv[0], argv[1:]...)
	cmd.Dir = root
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to run install command: %w", err)
	}

	var pipes sync.WaitGroup
	pipes.Add(2)
	go s.scanPipe(appID, stdout, logbus.SourceInstall, false, &pipes)
	go s.scanPipe(appID, stderr, logbus.SourceInstall, true, &pipes)
	pipes.Wait()

	if err := cmd.Wait(); err != nil {
		if errors.Is(ictx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("dependency install timed out after %s", s.opts.InstallTimeout)
		}
		return fmt.Errorf("dependency install failed: %w", err)
	}
	return nil
}

// reap owns the running child's pipes and exit: it drains both scanners,
// waits for the process, publishes the exit line, releases the port, and
// frees the workspace for the next Start.
func (s *Supervisor) reap(p *process, stdout, stderr io.ReadCloser) {
	defer s.wg.Done()

	var pipes sync.WaitGroup
	pipes.Add(2)
	go s.scanPipe(p.appID, stdout, logbus.SourceDev, false, &pipes)
	go s.scanPipe(p.appID, stderr, logbus.SourceDev, true, &pipes)
	pipes.Wait()

	err := p.cmd.Wait()
	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	s.publishSystem(p.appID, fmt.Sprintf("Dev server exited (code %d)", exitCode), exitCode != 0)
	s.logger.Info("Dev server exited", "app_id", p.appID, "port", p.port, "exit_code", exitCode)

	s.alloc.Release(p.port)

	s.mu.Lock()
	delete(s.procs, p.appID)
	s.mu.Unlock()
	close(p.done)
}

// Stop shuts the workspace's dev server down. It returns false when
// nothing was running. The process group gets a SIGTERM, then a SIGKILL
// once the grace window lapses, and Stop returns only after the exit
// handler has fully reaped the child.
func (s *Supervisor) Stop(appID int64) bool {
	s.mu.Lock()
	p, ok := s.procs[appID]
	if !ok || p.state != StateRunning {
		s.mu.Unlock()
		return false
	}
	p.state = StateStopping
	cmd := p.cmd
	s.mu.Unlock()

	s.publishSystem(appID, "Stopping dev server...", false)
	signalGroup(cmd, syscall.SIGTERM)

	select {
	case <-p.done:
	case <-time.After(s.opts.StopGrace):
		s.logger.Warn("Dev server ignored SIGTERM, killing", "app_id", appID)
		signalGroup(cmd, syscall.SIGKILL)
		<-p.done
	}
	return true
}

// Status reports whether the workspace's dev server is running and on
// which port.
func (s *Supervisor) Status(appID int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[appID]
	if !ok {
		return Status{}
	}
	st := Status{State: p.state}
	if p.state == StateRunning {
		st.Running = true
		st.Port = p.port
		startedAt := p.startedAt
		st.StartedAt = &startedAt
	}
	return st
}

// Port returns the leased port for a running workspace. The boolean is
// false when no lease exists. This is the preview proxy's lookup.
func (s *Supervisor) Port(appID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[appID]
	if !ok || p.state != StateRunning {
		return 0, false
	}
	return p.port, true
}

// Shutdown stops every running workspace and waits for their exit
// handlers. New starts fail with ErrShuttingDown from the first call on.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.stopped = true
	ids := make([]int64, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Stop(id)
	}
	s.wg.Wait()
	s.logger.Info("Supervisor stopped", "workspaces", len(ids))
}

// scanPipe publishes each output line as a log event. Lines beyond the
// buffer cap are split by the scanner rather than dropped.
func (s *Supervisor) scanPipe(appID int64, r io.Reader, source string, isError bool, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.bus.Publish(appID, logbus.LogEvent{Source: source, Message: line, IsError: isError})
	}
}

func (s *Supervisor) publishSystem(appID int64, message string, isError bool) {
	s.bus.Publish(appID, logbus.LogEvent{Source: logbus.SourceSystem, Message: message, IsError: isError})
}

// splitCommand substitutes the leased port into the command template and
// splits it into argv.
func splitCommand(template string, port int) []string {
	return strings.Fields(strings.ReplaceAll(template, "{port}", strconv.Itoa(port)))
}

// signalGroup signals the child's whole process group, falling back to the
// child itself if the group is gone.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		_ = cmd.Process.Signal(sig)
	}
}
