package cluster

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Member is one worker in the cluster membership file.
type Member struct {
	Rank int    `yaml:"rank"`
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Config is the cluster membership read by every worker of a TCP job. The
// world size is the number of listed workers.
type Config struct {
	Workers []Member `yaml:"workers"`
}

// LoadConfig reads a yaml membership file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read cluster config %s", path)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse cluster config %s", path)
	}
	if len(cfg.Workers) == 0 {
		return nil, errors.Errorf("cluster config %s lists no workers", path)
	}
	return cfg, nil
}

func (c *Config) member(rank int) (Member, bool) {
	for _, m := range c.Workers {
		if m.Rank == rank {
			return m, true
		}
	}
	return Member{}, false
}
