package executor

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
)

// cellBoundary separates replayed state from the current cell's output in
// the combined stream.
const cellBoundary = "__DATAPILOT_CELL_BOUNDARY__"

// DockerExecutor runs Python cells in locked-down containers. Containers
// are stateless, so state across cells is approximated by replaying every
// previously successful snippet before the new one and reporting only the
// output past the last boundary marker.
type DockerExecutor struct {
	cli       *client.Client
	cfg       Config
	workspace string
	prior     []string // successful snippets, in execution order
}

// NewDockerExecutor creates an executor and verifies the daemon is
// reachable.
func NewDockerExecutor(cfg Config) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	workspace, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		cli.Close()
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &DockerExecutor{cli: cli, cfg: cfg, workspace: workspace}, nil
}

// Close releases the Docker client.
func (e *DockerExecutor) Close() error { return e.cli.Close() }

// Prior returns the replayed snippet prefix, in order.
func (e *DockerExecutor) Prior() []string {
	out := make([]string, len(e.prior))
	copy(out, e.prior)
	return out
}

// Execute runs one cell. An error return means the infrastructure failed;
// code that merely raises comes back as Result.Success=false.
func (e *DockerExecutor) Execute(ctx context.Context, code string) (Result, error) {
	if err := e.ensureImage(ctx); err != nil {
		return Result{}, err
	}

	scriptPath, err := e.writeScript(code)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(scriptPath)

	watcher, err := watchArtifacts(e.workspace)
	if err != nil {
		// Image collection is best effort; the run itself still proceeds.
		log.Printf("WARNING: artifact watcher unavailable: %v", err)
	}

	res, err := e.runContainer(ctx, filepath.Base(scriptPath))

	if watcher != nil {
		res.Images = append(res.Images, watcher.stop()...)
	}
	if err != nil {
		return Result{}, err
	}

	if res.Success {
		e.prior = append(e.prior, code)
	}
	return res, nil
}

// writeScript assembles the replay prelude plus the new cell into one
// script inside the workspace, where the container can read it.
func (e *DockerExecutor) writeScript(code string) (string, error) {
	var sb strings.Builder
	// Headless matplotlib so figures render to files, not a display.
	sb.WriteString("try:\n    import matplotlib\n    matplotlib.use('Agg')\nexcept ImportError:\n    pass\n\n")
	for _, snippet := range e.prior {
		sb.WriteString(snippet)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "print(%q, flush=True)\n\n", cellBoundary)
	sb.WriteString(code)
	sb.WriteString("\n")

	path := filepath.Join(e.workspace, ".datapilot_cell.py")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write cell script: %w", err)
	}
	return path, nil
}

func (e *DockerExecutor) runContainer(ctx context.Context, scriptName string) (Result, error) {
	containerConfig := &container.Config{
		Image:           e.cfg.Image,
		Cmd:             []string{"python", "/workspace/" + scriptName},
		WorkingDir:      "/workspace",
		User:            "1000:1000",
		Env:             []string{"HOME=/tmp", "MPLCONFIGDIR=/tmp"},
		NetworkDisabled: true,
	}

	memory, err := units.RAMInBytes(e.cfg.Memory)
	if err != nil {
		memory = 1 * units.GiB
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: e.workspace,
			Target: "/workspace",
		}},
		Resources: container.Resources{
			Memory:   memory,
			NanoCPUs: parseCPU(e.cfg.CPU) * 1e9,
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
			},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=100m",
		},
	}

	created, err := e.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("create container: %w", err)
	}
	containerID := created.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.cli.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.cli.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := e.cli.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = e.cli.ContainerKill(killCtx, containerID, "SIGKILL")
		return Result{
			Success: false,
			Output:  fmt.Sprintf("Execution timed out after %s", e.cfg.Timeout),
			Error:   "execution timed out",
		}, nil
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("container wait: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := e.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "all",
	})
	if err != nil {
		return Result{}, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()

	stdout, stderr := demuxLogs(logs)
	stdout = afterBoundary(stdout)

	output := stdout
	if stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += stderr
	}

	res := Result{
		Success: exitCode == 0,
		Output:  output,
	}
	if !res.Success {
		res.Error = stderr
		if res.Error == "" {
			res.Error = fmt.Sprintf("exit code %d", exitCode)
		}
	}
	return res, nil
}

func (e *DockerExecutor) ensureImage(ctx context.Context) error {
	if _, _, err := e.cli.ImageInspectWithRaw(ctx, e.cfg.Image); err == nil {
		return nil
	}

	log.Printf("WARNING: image %s not found locally, pulling", e.cfg.Image)
	reader, err := e.cli.ImagePull(ctx, e.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", e.cfg.Image, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// afterBoundary returns the text past the last boundary marker, which is
// the current cell's own output. Replayed snippets print theirs before it.
func afterBoundary(s string) string {
	if i := strings.LastIndex(s, cellBoundary); i >= 0 {
		return strings.TrimLeft(s[i+len(cellBoundary):], "\n")
	}
	return s
}

// demuxLogs separates the multiplexed Docker log stream into stdout and
// stderr. Each frame is an 8-byte header (stream type, 3 reserved bytes,
// big-endian payload size) followed by the payload.
func demuxLogs(reader io.Reader) (stdout, stderr string) {
	var stdoutParts, stderrParts []string

	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			break
		}
		streamType := header[0]
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size <= 0 || size > 10*1024*1024 {
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			break
		}

		content := strings.TrimSuffix(string(payload), "\n")
		switch streamType {
		case 1:
			stdoutParts = append(stdoutParts, content)
		case 2:
			stderrParts = append(stderrParts, content)
		}
	}
	return strings.Join(stdoutParts, "\n"), strings.Join(stderrParts, "\n")
}

func parseCPU(cpuStr string) int64 {
	cpuStr = strings.TrimSpace(cpuStr)
	if cpuStr == "" {
		return 2
	}
	var value float64
	fmt.Sscanf(cpuStr, "%f", &value)
	if value <= 0 {
		return 2
	}
	return int64(value)
}
