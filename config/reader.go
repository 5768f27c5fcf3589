package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"go.viam.com/augment/logging"
	"go.viam.com/augment/utils"
)

// Read reads a config from the given file. ${VAR} references are replaced with the value of the
// environment variable before the file is parsed. Relative paths in the file are resolved against
// its directory.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving config path %q", filePath)
	}
	filePath = abs
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", filePath)
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}

	cfg := Default()
	if err := utils.DecodeInto(raw, cfg, true); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	cfg.ConfigFilePath = originalPath
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	logger.Debugw("config loaded",
		"path", originalPath,
		"video", cfg.Video.Path,
		"programs", len(cfg.Programs),
		"filter", cfg.Filter.Type,
		"hot_reload", cfg.HotReload,
	)
	return cfg, nil
}
