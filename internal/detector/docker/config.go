package docker

import (
	"time"
)

// Config holds the configuration for running the detection model in Docker.
type Config struct {
	// Image is the Docker image that carries the model weights and runtime.
	Image string
	// Command is exec'd inside the container. It reads a PNG on stdin and
	// writes a JSON array of rows to stdout.
	Command []string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout is the maximum amount of time one inference can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
}

// DefaultConfig provides defaults sized for a small YOLO model on CPU.
func DefaultConfig() Config {
	return Config{
		Image:   "foodlens/detector:latest",
		Command: []string{"python", "/app/infer.py"},
		// 1 GB memory limit
		MemoryLimit: 1024 * 1024 * 1024,
		CPULimit:    1,
		Timeout:     10 * time.Second,
		PoolSize:    2,
	}
}
