package yaml

import (
	"fmt"
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/robocompute/go-robocompute/internal/models"
)

type Parser interface {
	Parse(yamlFile []byte) error
	Task() (models.CreateTaskReq, error)
}

type Version struct {
	Version string `yaml:"version"`
}

func getYAMLFileVersion(yamlFile []byte) (string, error) {
	var version Version
	err := yaml.Unmarshal(yamlFile, &version)
	if err != nil {
		return "", err
	}
	return version.Version, nil
}

// ParseTask turns a task file into a submit request.
func ParseTask(yamlFile []byte) (models.CreateTaskReq, error) {
	version, err := getYAMLFileVersion(yamlFile)
	if err != nil {
		return models.CreateTaskReq{}, xerrors.Errorf("failed unable to parse YAML file: %w", err)
	}

	var parser Parser
	switch version {
	case "1.0", "":
		parser = &ParserTaskV1{}
	default:
		return models.CreateTaskReq{}, fmt.Errorf("not support yaml version: %s", version)
	}
	if err = parser.Parse(yamlFile); err != nil {
		return models.CreateTaskReq{}, xerrors.Errorf("failed unable to parse YAML file: %w", err)
	}
	return parser.Task()
}

func HandlerYaml(yamlFilePath string) (models.CreateTaskReq, error) {
	yamlFile, err := os.ReadFile(yamlFilePath)
	if err != nil {
		return models.CreateTaskReq{}, fmt.Errorf("failed unable to read file, %w", err)
	}
	return ParseTask(yamlFile)
}
