package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"go.viam.com/projection/logging"
)

// Read reads a config from the given file. `${VAR}` references are replaced with the value of
// the environment variable before the JSON is parsed.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := Config{
		ConfigFilePath: originalPath,
	}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := cfg.Ensure(); err != nil {
		return nil, errors.Wrapf(err, "failed to process Config")
	}
	cfg.ConfigFilePath = originalPath

	logger.Debugw("read config",
		"path", originalPath,
		"focal_length_x", cfg.ProjectorConfig.Intrinsics.Fx,
		"focal_length_y", cfg.ProjectorConfig.Intrinsics.Fy,
		"ppx", cfg.ProjectorConfig.Intrinsics.Ppx,
		"ppy", cfg.ProjectorConfig.Intrinsics.Ppy,
		"rf", cfg.ProjectorConfig.RegionShrinkFactor)
	return &cfg, nil
}
