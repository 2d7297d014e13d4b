package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	BodyLimit    string        `mapstructure:"body_limit"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ExecutionConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	OutputLimit      string        `mapstructure:"output_limit"`
	ProvisionTimeout time.Duration `mapstructure:"provision_timeout"`
	StageTimeout     time.Duration `mapstructure:"stage_timeout"`
	CleanupTimeout   time.Duration `mapstructure:"cleanup_timeout"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	QueueTimeout     time.Duration `mapstructure:"queue_timeout"`
	StagingDir       string        `mapstructure:"staging_dir"`
	WorkDir          string        `mapstructure:"work_dir"`
}

type SandboxConfig struct {
	Memory    string  `mapstructure:"memory"`
	CPUs      float64 `mapstructure:"cpus"`
	PidsLimit int64   `mapstructure:"pids_limit"`
	FileSize  string  `mapstructure:"file_size"`
}

type DockerConfig struct {
	Host         string        `mapstructure:"host"`
	PullImages   bool          `mapstructure:"pull_images"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	ReapMaxAge   time.Duration `mapstructure:"reap_max_age"`
}

type LanguagesConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Languages LanguagesConfig `mapstructure:"languages"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.body_limit", "4MiB")
	v.SetDefault("server.read_timeout", 10*time.Second)
	// must outlive the longest pipeline: provision + stage + run + cleanup
	v.SetDefault("server.write_timeout", 2*time.Minute)

	v.SetDefault("execution.timeout", 30*time.Second)
	v.SetDefault("execution.output_limit", "100MiB")
	v.SetDefault("execution.provision_timeout", 30*time.Second)
	v.SetDefault("execution.stage_timeout", 15*time.Second)
	v.SetDefault("execution.cleanup_timeout", 15*time.Second)
	v.SetDefault("execution.max_concurrent", 32)
	v.SetDefault("execution.queue_timeout", 10*time.Second)
	v.SetDefault("execution.staging_dir", "")
	v.SetDefault("execution.work_dir", "/usr/src/app")

	v.SetDefault("sandbox.memory", "512m")
	v.SetDefault("sandbox.cpus", 0.5)
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.file_size", "20m")

	v.SetDefault("docker.host", "")
	v.SetDefault("docker.pull_images", false)
	v.SetDefault("docker.reap_interval", time.Minute)
	v.SetDefault("docker.reap_max_age", 10*time.Minute)

	v.SetDefault("languages.file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("rate_limit.rps", 0)
	v.SetDefault("rate_limit.burst", 10)
}

// Load reads configuration from defaults, an optional YAML file and
// RUNBOX_* environment variables, in increasing precedence. With an empty
// path the file is looked up as runbox.yaml in . and /etc/runbox and may be
// absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("runbox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("runbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/runbox")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Execution.Timeout <= 0 {
		return errors.New("execution.timeout must be positive")
	}
	if c.Execution.ProvisionTimeout <= 0 || c.Execution.StageTimeout <= 0 || c.Execution.CleanupTimeout <= 0 {
		return errors.New("execution step timeouts must be positive")
	}
	if c.Execution.MaxConcurrent < 0 {
		return errors.New("execution.max_concurrent must not be negative")
	}
	if c.Execution.WorkDir == "" || !strings.HasPrefix(c.Execution.WorkDir, "/") {
		return fmt.Errorf("execution.work_dir must be an absolute path, got %q", c.Execution.WorkDir)
	}
	if _, err := c.OutputLimitBytes(); err != nil {
		return err
	}
	if _, err := c.BodyLimitBytes(); err != nil {
		return err
	}
	if _, err := c.MemoryBytes(); err != nil {
		return err
	}
	if _, err := c.FileSizeBytes(); err != nil {
		return err
	}
	if c.Sandbox.CPUs <= 0 {
		return errors.New("sandbox.cpus must be positive")
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("rate_limit.rps must not be negative")
	}

	budget := c.PipelineBudget()
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < budget {
		return fmt.Errorf("server.write_timeout %s is shorter than the execution pipeline (%s)", c.Server.WriteTimeout, budget)
	}
	if c.Docker.ReapInterval > 0 && c.Docker.ReapMaxAge < budget {
		return fmt.Errorf("docker.reap_max_age %s would reap live environments (pipeline takes up to %s)", c.Docker.ReapMaxAge, budget)
	}
	return nil
}

// PipelineBudget is the longest a single submission can take: queueing for
// the gate, then every step at its deadline.
func (c *Config) PipelineBudget() time.Duration {
	e := c.Execution
	return e.QueueTimeout + e.ProvisionTimeout + e.StageTimeout + e.Timeout + e.CleanupTimeout
}

// OutputLimitBytes is the combined stdout+stderr ceiling in bytes.
func (c *Config) OutputLimitBytes() (int64, error) {
	return positiveSize("execution.output_limit", c.Execution.OutputLimit)
}

func (c *Config) BodyLimitBytes() (int64, error) {
	return positiveSize("server.body_limit", c.Server.BodyLimit)
}

func (c *Config) MemoryBytes() (int64, error) {
	return positiveSize("sandbox.memory", c.Sandbox.Memory)
}

func (c *Config) FileSizeBytes() (int64, error) {
	return positiveSize("sandbox.file_size", c.Sandbox.FileSize)
}

func positiveSize(key, raw string) (int64, error) {
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, raw)
	}
	return n, nil
}
