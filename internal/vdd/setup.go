package vdd

import (
	"errors"
	"fmt"
	"io"

	"github.com/breeze-rmm/vdd/internal/config"
	"github.com/breeze-rmm/vdd/internal/logging"
)

// Setup loads the config file (empty for the default location), configures
// logging and returns a closed session built from it. The closer releases
// the log file, if any.
func Setup(cfgFile string, opts ...Option) (*Session, io.Closer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("vdd: load config: %w", err)
	}
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		return nil, nil, fmt.Errorf("vdd: invalid config: %w", errors.Join(result.Fatals...))
	}

	out, closer, err := logging.Output(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		return nil, nil, fmt.Errorf("vdd: log output: %w", err)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
	for _, w := range result.Warnings {
		log.Warn("config validation", logging.Err(w))
	}

	return NewSession(append([]Option{WithConfig(cfg)}, opts...)...), closer, nil
}
