package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ServerManager manages sidecar server processes that keep a model resident.
// StopAll ends its lifetime: running servers are killed and starts still
// waiting for readiness are aborted.
type ServerManager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	servers map[string]*ServerProcess
	client  *http.Client
	poll    time.Duration
	mu      sync.Mutex
}

// ServerProcess represents a server running process.
type ServerProcess struct {
	ctx     context.Context
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	baseURL string
	ready   chan struct{}
	err     error
}

// ServerConfig defines how to start and check a backend server.
type ServerConfig struct {
	Env          map[string]string
	Name         string
	BinPath      string
	HealthPath   string
	Args         []string
	Port         int
	ReadyTimeout time.Duration
}

// NewServerManager initializes a ServerManager.
func NewServerManager() *ServerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &ServerManager{
		ctx:     ctx,
		cancel:  cancel,
		servers: map[string]*ServerProcess{},
		client:  &http.Client{Timeout: 1 * time.Second},
		poll:    1 * time.Second,
	}
}

// StartServer starts a backend server and blocks until its health endpoint
// answers 200, returning the base URL. Starting a server that is already
// running, or still starting, waits for that server instead.
func (sm *ServerManager) StartServer(ctx context.Context, cfg ServerConfig) (string, error) {
	key := fmt.Sprintf("%s-%d", cfg.Name, cfg.Port)

	sm.mu.Lock()
	if srv, exists := sm.servers[key]; exists {
		sm.mu.Unlock()
		select {
		case <-srv.ready:
			return srv.baseURL, srv.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	srv, err := sm.spawn(cfg)
	if err != nil {
		sm.mu.Unlock()
		return "", err
	}
	sm.servers[key] = srv
	sm.mu.Unlock()

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	timeout := cfg.ReadyTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	// StopServer and StopAll cancel the process context, which ends the poll.
	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	defer context.AfterFunc(srv.ctx, cancelWait)()

	err = sm.WaitReady(waitCtx, srv.baseURL+healthPath, timeout)

	sm.mu.Lock()
	owned := sm.servers[key] == srv
	if err == nil && !owned {
		err = errors.New("stopped while starting")
	}
	if err != nil {
		srv.err = fmt.Errorf("manager: %s server did not become ready: %w", cfg.Name, err)
		if owned {
			delete(sm.servers, key)
		}
	}
	close(srv.ready)
	sm.mu.Unlock()

	if err != nil {
		if owned {
			sm.stop(srv)
		}
		return "", srv.err
	}

	slog.Info("Server started", "name", cfg.Name, "port", cfg.Port, "pid", srv.cmd.Process.Pid)
	return srv.baseURL, nil
}

// spawn launches the process. sm.mu must be held.
func (sm *ServerManager) spawn(cfg ServerConfig) (*ServerProcess, error) {
	if err := sm.ctx.Err(); err != nil {
		return nil, fmt.Errorf("manager: failed to start %s server: manager stopped", cfg.Name)
	}

	binPath, err := exec.LookPath(cfg.BinPath)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to start %s server: %w", cfg.Name, err)
	}

	procCtx, cancel := context.WithCancel(sm.ctx)
	cmd := exec.CommandContext(procCtx, binPath, cfg.Args...)

	// Apply environment variables if provided
	if len(cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("manager: failed to start %s server: %w", cfg.Name, err)
	}

	return &ServerProcess{
		ctx:     procCtx,
		cmd:     cmd,
		cancel:  cancel,
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
		ready:   make(chan struct{}),
	}, nil
}

// StopServer terminates a backend server.
func (sm *ServerManager) StopServer(name string, port int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := fmt.Sprintf("%s-%d", name, port)
	srv, exists := sm.servers[key]
	if !exists {
		return fmt.Errorf("server %s-%d not found", name, port)
	}

	sm.stop(srv)
	delete(sm.servers, key)
	slog.Info("Server stopped", "name", name, "port", port)
	return nil
}

// StopAll terminates all servers, including those still starting, and
// refuses later starts.
func (sm *ServerManager) StopAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.cancel()
	for _, srv := range sm.servers {
		sm.stop(srv)
	}
	sm.servers = map[string]*ServerProcess{}

	slog.Info("All servers stopped")
}

func (sm *ServerManager) stop(srv *ServerProcess) {
	srv.cancel()
	if err := srv.cmd.Wait(); err != nil {
		slog.Debug("Server process exited", "error", err)
	}
}

// WaitReady polls url until it answers 200, ctx ends or timeout elapses.
func (sm *ServerManager) WaitReady(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(sm.poll)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := sm.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("manager: server failed to respond at %s within %v", url, timeout)
		case <-ticker.C:
		}
	}
}
