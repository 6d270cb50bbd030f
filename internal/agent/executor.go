package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/robocompute/go-robocompute/internal/models"
)

// Job is one task handed to an executor.
type Job struct {
	TaskId       string
	Name         string
	Type         models.TaskType
	Image        string
	Command      []string
	Requirements models.ResourceRequirements
	Timeout      time.Duration
}

func jobOf(t *models.Task) Job {
	return Job{
		TaskId:       t.Id,
		Name:         t.Name,
		Type:         t.Type,
		Image:        t.DockerImage,
		Command:      t.Command,
		Requirements: t.ResourceRequirements,
		Timeout:      time.Duration(t.TimeoutSeconds) * time.Second,
	}
}

// Output is what a finished job produced.
type Output struct {
	ContainerId   string
	Logs          []string
	ResultHash    string
	ResourceUsage map[string]float64
}

// Executor runs a job to completion. started is called once the workload is
// running, before Run waits on it; an error from started aborts the job.
type Executor interface {
	Run(ctx context.Context, job Job, started func(containerId string) error) (*Output, error)
}

// ExecError carries the logs of a job that ran but did not succeed.
type ExecError struct {
	Message string
	Logs    []string
}

func (e *ExecError) Error() string {
	return e.Message
}

// splitLogs strips ANSI escapes and splits raw output into lines.
func splitLogs(raw string) []string {
	clean := stripansi.Strip(strings.ReplaceAll(raw, "\r\n", "\n"))
	clean = strings.TrimRight(clean, "\n")
	if clean == "" {
		return nil
	}
	return strings.Split(clean, "\n")
}

// resultHash identifies a job's output.
func resultHash(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func containerName(taskId string) string {
	return "rc-" + strings.ReplaceAll(strings.ToLower(taskId), "_", "-")
}
