package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/filswan/go-swan-lib/logs"

	"github.com/robocompute/go-robocompute/internal/models"
)

// containerRuntime is the part of the docker engine the executor drives.
type containerRuntime interface {
	Pull(ctx context.Context, image string) error
	Create(ctx context.Context, name string, job Job) (string, error)
	Start(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (int64, error)
	Logs(ctx context.Context, id string) (string, error)
	Remove(ctx context.Context, id string) error
}

type DockerExecutor struct {
	rt containerRuntime
}

func NewDockerExecutor() (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerExecutor{rt: &engine{c: cli}}, nil
}

func (d *DockerExecutor) Run(ctx context.Context, job Job, started func(string) error) (*Output, error) {
	if err := d.rt.Pull(ctx, job.Image); err != nil {
		return nil, fmt.Errorf("pull image %s: %w", job.Image, err)
	}
	id, err := d.rt.Create(ctx, containerName(job.TaskId), job)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.rt.Remove(rmCtx, id); err != nil {
			logs.GetLogger().Errorf("remove container %s failed, error: %v", id, err)
		}
	}()

	if err := d.rt.Start(ctx, id); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}
	if err := started(id); err != nil {
		return nil, err
	}
	startedAt := time.Now()

	exitCode, waitErr := d.rt.Wait(ctx, id)

	logCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	raw, err := d.rt.Logs(logCtx, id)
	if err != nil {
		logs.GetLogger().Errorf("read logs of container %s failed, error: %v", id, err)
	}
	lines := splitLogs(raw)

	if waitErr != nil {
		return nil, &ExecError{Message: fmt.Sprintf("container %s: %v", id, waitErr), Logs: lines}
	}
	if exitCode != 0 {
		return nil, &ExecError{Message: fmt.Sprintf("container exited with code %d", exitCode), Logs: lines}
	}
	return &Output{
		ContainerId:   id,
		Logs:          lines,
		ResultHash:    resultHash(lines),
		ResourceUsage: map[string]float64{"wall_seconds": time.Since(startedAt).Seconds()},
	}, nil
}

type engine struct {
	c *client.Client
}

func (e *engine) Pull(ctx context.Context, image string) error {
	rd, err := e.c.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer rd.Close()
	_, err = io.Copy(io.Discard, rd)
	return err
}

func (e *engine) Create(ctx context.Context, name string, job Job) (string, error) {
	res := container.Resources{}
	if job.Requirements.CpuCores > 0 {
		res.NanoCPUs = int64(job.Requirements.CpuCores) * 1e9
	}
	if job.Requirements.RamGb > 0 {
		res.Memory = int64(job.Requirements.RamGb) << 30
	}
	if job.Type == models.TaskTypeGPU {
		res.DeviceRequests = []container.DeviceRequest{{
			Driver:       "nvidia",
			Count:        -1,
			Capabilities: [][]string{{"gpu"}},
		}}
	}
	resp, err := e.c.ContainerCreate(ctx,
		&container.Config{
			Image:  job.Image,
			Cmd:    job.Command,
			Labels: map[string]string{"robocompute.task": job.TaskId},
		},
		&container.HostConfig{Resources: res},
		nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (e *engine) Start(ctx context.Context, id string) error {
	return e.c.ContainerStart(ctx, id, types.ContainerStartOptions{})
}

func (e *engine) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := e.c.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case st := <-statusCh:
		if st.Error != nil {
			return st.StatusCode, fmt.Errorf("%s", st.Error.Message)
		}
		return st.StatusCode, nil
	}
}

func (e *engine) Logs(ctx context.Context, id string) (string, error) {
	rd, err := e.c.ContainerLogs(ctx, id, types.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer rd.Close()
	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rd); err != nil {
		return out.String(), err
	}
	return out.String(), nil
}

func (e *engine) Remove(ctx context.Context, id string) error {
	return e.c.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true})
}
