package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/logbuffer"
	"github.com/recap/devmon/internal/version"
	"github.com/rs/zerolog"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

// loadConfig reads the config file. A missing file at the default path falls
// back to defaults plus environment variables.
func (c *commandContext) loadConfig() (*config.Config, error) {
	path := strings.TrimSpace(*c.configFlag)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return config.Parse(nil)
	}
	return nil, err
}

// newLogger builds the process logger writing to w and, when set, the log buffer
func (c *commandContext) newLogger(w io.Writer, buf *logbuffer.Buffer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(*c.logLevelFlag))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", *c.logLevelFlag)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if buf != nil {
		w = io.MultiWriter(w, buf)
	}
	return zerolog.New(w).With().
		Timestamp().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Logger(), nil
}
