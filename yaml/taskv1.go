package yaml

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/robocompute/go-robocompute/internal/models"
)

// TaskYamlV1 is the task file layout:
//
//	version: "1.0"
//	name: slam-mapping
//	type: gpu
//	docker_image: robocompute/slam:2
//	command: ["./run", "--map", "warehouse"]
//	resource_requirements:
//	  gpu_memory_gb: 16
//	max_price_per_hour: "4.00"
//	timeout_seconds: 3600
//	priority: high
type TaskYamlV1 struct {
	Version              string                      `yaml:"version"`
	Name                 string                      `yaml:"name"`
	Type                 string                      `yaml:"type"`
	DockerImage          string                      `yaml:"docker_image"`
	Command              []string                    `yaml:"command"`
	ResourceRequirements models.ResourceRequirements `yaml:"resource_requirements"`
	MaxPricePerHour      string                      `yaml:"max_price_per_hour"`
	TimeoutSeconds       int                         `yaml:"timeout_seconds"`
	Priority             string                      `yaml:"priority"`
}

type ParserTaskV1 struct {
	config TaskYamlV1
}

func (p *ParserTaskV1) Parse(yamlFile []byte) error {
	var task TaskYamlV1
	if err := yaml.UnmarshalStrict(yamlFile, &task); err != nil {
		return err
	}
	p.config = task
	return nil
}

func (p *ParserTaskV1) Task() (models.CreateTaskReq, error) {
	c := p.config
	if strings.TrimSpace(c.Name) == "" {
		return models.CreateTaskReq{}, xerrors.New("name is required")
	}
	if strings.TrimSpace(c.DockerImage) == "" {
		return models.CreateTaskReq{}, xerrors.New("docker_image is required")
	}
	if c.MaxPricePerHour == "" {
		return models.CreateTaskReq{}, xerrors.New("max_price_per_hour is required")
	}
	price, err := decimal.NewFromString(c.MaxPricePerHour)
	if err != nil {
		return models.CreateTaskReq{}, xerrors.Errorf("invalid max_price_per_hour %q: %w", c.MaxPricePerHour, err)
	}
	typ := models.TaskType(strings.ToLower(c.Type))
	if !typ.Valid() {
		return models.CreateTaskReq{}, xerrors.Errorf("invalid type %q, must be gpu or cpu", c.Type)
	}
	return models.CreateTaskReq{
		Name:                 c.Name,
		Type:                 typ,
		ResourceRequirements: c.ResourceRequirements,
		DockerImage:          c.DockerImage,
		Command:              c.Command,
		MaxPricePerHour:      price,
		TimeoutSeconds:       c.TimeoutSeconds,
		Priority:             models.Priority(strings.ToLower(c.Priority)),
	}, nil
}
