package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robocompute/go-robocompute/internal/models"
)

const taskFile = `
version: "1.0"
name: slam-mapping
type: GPU
docker_image: robocompute/slam:2
command: ["./run", "--map", "warehouse"]
resource_requirements:
  gpu_memory_gb: 16
  ram_gb: 32
max_price_per_hour: "4.50"
timeout_seconds: 7200
priority: high
`

func TestHandlerYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.yaml")
	require.NoError(t, os.WriteFile(path, []byte(taskFile), 0600))

	req, err := HandlerYaml(path)
	require.NoError(t, err)
	assert.Equal(t, "slam-mapping", req.Name)
	assert.Equal(t, models.TaskTypeGPU, req.Type)
	assert.Equal(t, "robocompute/slam:2", req.DockerImage)
	assert.Equal(t, []string{"./run", "--map", "warehouse"}, req.Command)
	assert.Equal(t, models.ResourceRequirements{GpuMemoryGb: 16, RamGb: 32}, req.ResourceRequirements)
	assert.Equal(t, "4.5", req.MaxPricePerHour.String())
	assert.Equal(t, 7200, req.TimeoutSeconds)
	assert.Equal(t, models.PriorityHigh, req.Priority)
}

func TestParseTaskErrors(t *testing.T) {
	cases := map[string]string{
		"version": "version: \"3.0\"\nname: a\n",
		"name":    "type: cpu\ndocker_image: busybox\nmax_price_per_hour: \"1\"\n",
		"image":   "name: a\ntype: cpu\nmax_price_per_hour: \"1\"\n",
		"price":   "name: a\ntype: cpu\ndocker_image: busybox\nmax_price_per_hour: cheap\n",
		"type":    "name: a\ntype: tpu\ndocker_image: busybox\nmax_price_per_hour: \"1\"\n",
		"unknown": "name: a\ntype: cpu\ndocker_image: busybox\nmax_price_per_hour: \"1\"\nreplicas: 3\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTask([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestHandlerYamlMissingFile(t *testing.T) {
	_, err := HandlerYaml(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
