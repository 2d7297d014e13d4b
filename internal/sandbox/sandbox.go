package sandbox

import (
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-units"
)

// Config holds the resource and privilege limits applied to every
// execution environment.
type Config struct {
	Memory    int64 // bytes
	CPU       int64 // NanoCPUs
	PidsLimit int64
	FileSize  int64 // bytes, per file written inside the container
}

// NewConfig builds a sandbox config. cpus is a fraction of a core.
func NewConfig(memory int64, cpus float64, pidsLimit, fileSize int64) Config {
	return Config{
		Memory:    memory,
		CPU:       int64(cpus * 1e9),
		PidsLimit: pidsLimit,
		FileSize:  fileSize,
	}
}

// HostConfig renders the limits as a Docker host config. The root fs stays
// writable because staging goes through CopyToContainer.
func (c Config) HostConfig() *container.HostConfig {
	pids := c.PidsLimit
	return &container.HostConfig{
		AutoRemove:  false,
		NetworkMode: "none",
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:     c.Memory,
			MemorySwap: c.Memory, // no swap
			NanoCPUs:   c.CPU,
			PidsLimit:  &pids, // per container; nproc would count the uid host-wide
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 64, Hard: 128},
				{Name: "core", Soft: 0, Hard: 0},
				{Name: "fsize", Soft: c.FileSize, Hard: c.FileSize},
			},
		},
	}
}
