package config

import (
	"strings"

	"github.com/go-errors/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/tatrishvili/sae302/internal/logging"
	"github.com/tatrishvili/sae302/internal/report"
	"github.com/tatrishvili/sae302/pkg/htmlfix"
	"github.com/tatrishvili/sae302/pkg/watch"
)

const (
	configName = ".fix-html"
	configType = "yaml"
	envPrefix  = "FIXHTML"

	DefaultConcurrency = 4
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.Errorf("invalid config")

// Config fix-html 运行配置
type Config struct {
	Files       []string       `mapstructure:"files"`
	Rules       string         `mapstructure:"rules"`
	DryRun      bool           `mapstructure:"dry_run"`
	Backup      bool           `mapstructure:"backup"`
	Strict      bool           `mapstructure:"strict"`
	Format      string         `mapstructure:"format"`
	Message     string         `mapstructure:"message"`
	Journal     string         `mapstructure:"journal"`
	Concurrency int            `mapstructure:"concurrency"`
	Log         logging.Config `mapstructure:"log"`
	Watch       WatchConfig    `mapstructure:"watch"`
}

// WatchConfig 监听模式配置
type WatchConfig struct {
	DebounceMs int `mapstructure:"debounce_ms"`
	MaxRetries int `mapstructure:"max_retries"`
}

// New 创建带默认值和环境变量映射的 viper 实例
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("files", []string{htmlfix.DefaultFile})
	v.SetDefault("rules", "")
	v.SetDefault("dry_run", false)
	v.SetDefault("backup", false)
	v.SetDefault("strict", false)
	v.SetDefault("format", report.FormatText)
	v.SetDefault("message", report.DefaultMessage)
	v.SetDefault("journal", "")
	v.SetDefault("concurrency", DefaultConcurrency)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("watch.debounce_ms", int(watch.DefaultDebounce.Milliseconds()))
	v.SetDefault("watch.max_retries", watch.DefaultMaxRetries)
}

// Load 读取配置文件（可选）、环境变量和已绑定的命令行参数
// configPath 为空时在当前目录查找 .fix-html.yaml，找不到不算错误
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errors.WrapPrefix(err, "read config", 0)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapPrefix(err, "unmarshal config", 0)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验并规范化配置
func (c *Config) Validate() error {
	if len(c.Files) == 0 {
		c.Files = []string{htmlfix.DefaultFile}
	}
	if c.Concurrency <= 0 {
		return errors.WrapPrefix(ErrInvalidConfig, "concurrency must be positive", 0)
	}
	if c.Watch.DebounceMs < 0 || c.Watch.MaxRetries < 0 {
		return errors.WrapPrefix(ErrInvalidConfig, "watch settings must not be negative", 0)
	}
	c.Format = report.NormalizeFormat(c.Format)
	return nil
}
