// Package localmodel runs the last-resort text-generation model in a local
// Docker container.
package localmodel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const (
	// DefaultImage is the text-generation server image.
	DefaultImage = "ghcr.io/huggingface/text-generation-inference:latest"
	// DefaultModelID is the model served when none is configured.
	DefaultModelID = "mistralai/Mistral-7B-Instruct-v0.2"
	// DefaultContainerName names the managed container.
	DefaultContainerName = "lawaid-local-model"
	// DefaultPort is the loopback host port the server is published on.
	DefaultPort = 8081

	serverPort      = nat.Port("80/tcp")
	cacheVolume     = "lawaid-model-cache"
	cacheMountPath  = "/data"
	stopTimeoutSecs = 10
	shmSizeBytes    = 1 << 30

	defaultReadyTimeout  = 5 * time.Minute
	readyPollInterval    = 500 * time.Millisecond
	healthProbeTimeout   = 2 * time.Second
	createRetryAttempts  = 3
	createRetryDelay     = 250 * time.Millisecond
	defaultIdleThreshold = 30 * time.Minute
)

// Config configures a Runtime.
type Config struct {
	Image         string
	ModelID       string
	ContainerName string
	Port          int
	// Runtime is the Docker runtime: "" = default (runc), "runsc" = gVisor.
	Runtime string
	// HubToken is passed to the container for gated model downloads.
	HubToken     string
	ReadyTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.ModelID == "" {
		c.ModelID = DefaultModelID
	}
	if c.ContainerName == "" {
		c.ContainerName = DefaultContainerName
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleThreshold
	}
}

// BaseURL returns the loopback URL the server is published on.
func (c Config) BaseURL() string {
	return "http://127.0.0.1:" + strconv.Itoa(c.Port)
}

// Runtime manages the lifecycle of the local model container.
type Runtime struct {
	cli        *client.Client
	cfg        Config
	httpClient *http.Client

	mu       sync.Mutex
	lastUsed time.Time
	ready    bool
}

// New creates a Docker-backed runtime. No container is started until the
// first EnsureRunning call.
func New(cfg Config) (*Runtime, error) {
	cfg.applyDefaults()
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Local model runtime initialized",
		"image", cfg.Image,
		"model_id", cfg.ModelID,
		"port", cfg.Port,
	)
	return &Runtime{
		cli:        cli,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: healthProbeTimeout},
	}, nil
}

// EnsureRunning reuses a running container, starts a stopped one, or creates
// a new one, then waits until the server reports healthy. It returns the
// server base URL.
func (r *Runtime) EnsureRunning(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastUsed = time.Now()
	baseURL := r.cfg.BaseURL()

	inspect, err := r.cli.ContainerInspect(ctx, r.cfg.ContainerName)
	switch {
	case err == nil && inspect.State != nil && inspect.State.Running:
		if r.ready {
			return baseURL, nil
		}
		slog.Info("Local model container already running", "container_id", inspect.ID)
	case err == nil:
		slog.Info("Starting stopped local model container", "container_id", inspect.ID)
		r.ready = false
		if err := r.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("start container %s: %w", inspect.ID, err)
		}
	case errdefs.IsNotFound(err):
		r.ready = false
		if _, err := r.create(ctx); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("inspect container %s: %w", r.cfg.ContainerName, err)
	}

	if err := waitReady(ctx, r.httpClient, baseURL, r.cfg.ReadyTimeout); err != nil {
		return "", err
	}
	r.ready = true
	r.lastUsed = time.Now()
	return baseURL, nil
}

func (r *Runtime) create(ctx context.Context) (string, error) {
	cfg, hostCfg := containerSpec(r.cfg)

	slog.Info("Creating local model container", "name", r.cfg.ContainerName, "image", r.cfg.Image)

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, r.cfg.ContainerName)
		if createErr == nil {
			break
		}
		if !errdefs.IsNotFound(createErr) {
			return "", fmt.Errorf("create container: %w", createErr)
		}

		// Image is missing locally.
		slog.Info("Pulling local model image", "image", r.cfg.Image, "attempt", i+1)
		if err := r.pull(ctx); err != nil {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return "", fmt.Errorf("create container after retries: %w", createErr)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errors.Is(removeErr, context.Canceled) {
			slog.Warn("Failed to remove container after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("start container %s: %w", resp.ID, err)
	}

	slog.Info("Local model container created and started", "container_id", resp.ID)
	return resp.ID, nil
}

func (r *Runtime) pull(ctx context.Context) error {
	rc, err := r.cli.ImagePull(ctx, r.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", r.cfg.Image, err)
	}
	defer func() { _ = rc.Close() }()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("read pull progress for %s: %w", r.cfg.Image, err)
	}
	return nil
}

// containerSpec builds the container and host configuration. The server is
// published on loopback only.
func containerSpec(cfg Config) (*container.Config, *container.HostConfig) {
	env := []string{}
	if cfg.HubToken != "" {
		env = append(env, "HF_TOKEN="+cfg.HubToken)
	}

	return &container.Config{
			Image:        cfg.Image,
			Cmd:          []string{"--model-id", cfg.ModelID},
			Env:          env,
			ExposedPorts: nat.PortSet{serverPort: struct{}{}},
			Labels:       map[string]string{"app": "lawaid", "role": "local-model"},
		}, &container.HostConfig{
			Runtime: cfg.Runtime,
			PortBindings: nat.PortMap{
				serverPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(cfg.Port)}},
			},
			Mounts: []mount.Mount{{
				Type:   mount.TypeVolume,
				Source: cacheVolume,
				Target: cacheMountPath,
			}},
			ShmSize: shmSizeBytes,
		}
}

// waitReady polls GET /health until it returns 2xx or timeout elapses.
func waitReady(ctx context.Context, httpClient *http.Client, baseURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthURL := strings.TrimRight(baseURL, "/") + "/health"
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		if lastErr = probe(ctx, httpClient, healthURL); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("local model not ready after %s: %w", timeout, lastErr)
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, httpClient *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

// Ping reports whether the server answers its health check. A stopped
// container is not an error; it is started on demand.
func (r *Runtime) Ping(ctx context.Context) error {
	running, err := r.IsRunning(ctx)
	if err != nil || !running {
		return err
	}
	return probe(ctx, r.httpClient, r.cfg.BaseURL()+"/health")
}

// IsRunning checks whether the container is running.
func (r *Runtime) IsRunning(ctx context.Context) (bool, error) {
	inspect, err := r.cli.ContainerInspect(ctx, r.cfg.ContainerName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", r.cfg.ContainerName, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

// IdleSince returns the time of the last generation and whether the server
// is believed to be up.
func (r *Runtime) IdleSince() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed, r.ready
}

// Stop stops and removes the container. It is idempotent.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = false

	name := r.cfg.ContainerName
	slog.Info("Stopping local model container", "name", name)

	timeout := stopTimeoutSecs
	if err := r.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Local model container already removed", "name", name)
			return nil
		}
		slog.Debug("Container stop returned error, continuing to remove", "name", name, "error", err)
	}

	if err := r.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is already in progress") {
			return nil
		}
		if ctx.Err() != nil {
			slog.Debug("Context canceled during remove, container may still be removed", "name", name, "error", err)
			return nil
		}
		return fmt.Errorf("remove container %s: %w", name, err)
	}

	slog.Info("Local model container stopped and removed", "name", name)
	return nil
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	return r.cli.Close()
}
