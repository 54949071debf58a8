// internal/workers/communication/campaign-dispatch/config.go
package campaigndispatch

import (
	"fmt"
	"time"

	"batch-mailer/internal/common/config"
	"batch-mailer/internal/dispatch"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`

	Transport        dispatch.TransportConfig
	Pacing           dispatch.Pacing
	ProgressInterval time.Duration
	ControlKeyTTL    time.Duration

	// MaxReportedFailures caps the failures list returned as a process variable.
	MaxReportedFailures int
	SummaryTopicARN     string
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 2,
		Timeout:       time.Hour,
		Transport: dispatch.TransportConfig{
			Port:           587,
			UseTLS:         true,
			ConnectTimeout: 30 * time.Second,
		},
		Pacing: dispatch.Pacing{
			BatchSize:     2,
			DelayPerEmail: 2 * time.Second,
			DelayPerBatch: 15 * time.Second,
		},
		ProgressInterval:    dispatch.DefaultProgressInterval,
		ControlKeyTTL:       24 * time.Hour,
		MaxReportedFailures: 20,
	}
}

// Validate checks worker level settings. Transport credentials are checked
// per run so preview jobs work without them.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.Pacing.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.Pacing.DelayPerEmail < 0 || c.Pacing.DelayPerBatch < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.ControlKeyTTL <= 0 {
		return fmt.Errorf("control_key_ttl must be positive")
	}
	if c.MaxReportedFailures < 0 {
		return fmt.Errorf("max_reported_failures must not be negative")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	if workerCfg, exists := appConfig.Workers[TaskType]; exists {
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
	}

	smtp := appConfig.SMTP
	cfg.Transport = dispatch.TransportConfig{
		Host:               smtp.Host,
		Port:               smtp.Port,
		Username:           smtp.Username,
		Password:           smtp.Password,
		UseTLS:             smtp.UseTLS,
		InsecureSkipVerify: smtp.InsecureSkipVerify,
		ConnectTimeout:     config.GetDuration(smtp.ConnectTimeout),
		LocalName:          smtp.LocalName,
	}

	d := appConfig.Dispatch
	if d.BatchSize > 0 {
		cfg.Pacing.BatchSize = d.BatchSize
	}
	cfg.Pacing.DelayPerEmail = config.GetDuration(d.DelayPerEmail)
	cfg.Pacing.DelayPerBatch = config.GetDuration(d.DelayPerBatch)
	if d.ProgressInterval > 0 {
		cfg.ProgressInterval = config.GetDuration(d.ProgressInterval)
	}
	if d.ControlKeyTTL > 0 {
		cfg.ControlKeyTTL = config.GetDuration(d.ControlKeyTTL)
	}

	if appConfig.Notifications.SNS.Enabled {
		cfg.SummaryTopicARN = appConfig.Notifications.SNS.TopicARN
	}

	return cfg
}
