// Package docker runs the detection model inside sandboxed Docker containers.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/foodlens/internal/detector"
)

// ErrTimeout is returned when the model does not answer within Config.Timeout.
var ErrTimeout = errors.New("docker: inference timed out")

// Model implements detector.Model by exec'ing the model command in a
// pre-warmed container.
type Model struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ detector.Model = (*Model)(nil)

// New connects to the Docker daemon, makes sure the image is present and
// starts the container pool.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Model, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if err := ensureImage(ctx, cli, cfg.Image, logger); err != nil {
		cli.Close()
		return nil, err
	}

	m := &Model{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	m.pool = NewPool(cli, cfg, logger)
	m.pool.Start()

	return m, nil
}

// ensureImage pulls the image only when the daemon does not have it yet.
func ensureImage(ctx context.Context, cli *client.Client, ref string, logger *slog.Logger) error {
	if _, err := cli.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect image: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	logger.Info("pulling detector image", slog.String("image", ref))
	reader, err := cli.ImagePull(pullCtx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	logger.Info("detector image is ready")
	return nil
}

// Close shuts down the pool and the docker client.
func (m *Model) Close() error {
	m.pool.Stop()
	return m.cli.Close()
}

// Infer streams pngImage to the model command and parses its output.
func (m *Model) Infer(ctx context.Context, pngImage []byte) ([][]float64, error) {
	start := time.Now()

	containerID, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}
	defer m.pool.Release(containerID)

	execCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	execResp, err := m.cli.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          m.config.Command,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := m.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	go func() {
		if _, err := attachResp.Conn.Write(pngImage); err != nil {
			m.logger.Error("failed to write image to model", slog.String("error", err.Error()))
		}
		_ = attachResp.CloseWrite()
	}()

	var stdout, stderr bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-execCtx.Done():
		return nil, fmt.Errorf("%w after %s", ErrTimeout, m.config.Timeout)
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	rows, err := decodeOutput(stdout.Bytes(), stderr.String(), inspect.ExitCode)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("model inference finished",
		slog.String("container", shortID(containerID)),
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return rows, nil
}

// decodeOutput interprets what the model command left behind. A non-zero
// exit code is an error carrying the tail of stderr.
func decodeOutput(stdout []byte, stderr string, exitCode int) ([][]float64, error) {
	if exitCode != 0 {
		return nil, fmt.Errorf("docker: model exited with code %d: %s", exitCode, tail(stderr, 512))
	}

	var rows [][]float64
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &rows); err != nil {
		return nil, fmt.Errorf("docker: decoding model output: %w", err)
	}
	if rows == nil {
		rows = [][]float64{}
	}
	return rows, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
