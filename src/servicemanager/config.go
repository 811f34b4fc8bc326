package servicemanager

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Scope string

const (
	// ScopeContainer builds the service once and shares the instance.
	ScopeContainer Scope = "container"
	// ScopePrototype builds a new instance on every fetch.
	ScopePrototype Scope = "prototype"
)

// Config is the declarative service graph, usually read from YAML:
//
//	parameters:
//	  mongo.uri: "%env:MONGO_URI%"
//	services:
//	  Mongo:
//	    factory: mongo.Database
//	    arguments: ["%mongo.uri%", "library"]
type Config struct {
	Parameters map[string]any           `yaml:"parameters"`
	Services   map[string]ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Factory   string       `yaml:"factory"`
	Arguments []any        `yaml:"arguments"`
	Calls     []CallConfig `yaml:"calls"`
	Scope     Scope        `yaml:"scope"`
	Parent    string       `yaml:"parent"`
	Abstract  bool         `yaml:"abstract"`
	Tags      []string     `yaml:"tags"`
}

// CallConfig invokes a method on the built instance.
type CallConfig struct {
	Method    string `yaml:"method"`
	Arguments []any  `yaml:"arguments"`
}

func ParseConfig(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("servicemanager.ParseConfig - %w", err)
	}

	for name, service := range config.Services {
		switch service.Scope {
		case "", ScopeContainer, ScopePrototype:
		default:
			return Config{}, fmt.Errorf("servicemanager.ParseConfig - service %s: unknown scope %q", name, service.Scope)
		}
	}
	return config, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("servicemanager.LoadConfig - %w", err)
	}
	return ParseConfig(data)
}
