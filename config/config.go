// Package config defines the file configuration of the projection tools.
package config

import (
	"math"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/projection/logging"
	"go.viam.com/projection/vision/projection"
)

const (
	// DefaultSyncQueueSize is how many messages per stream the synchronizer keeps by default.
	DefaultSyncQueueSize = 4
	// DefaultSyncSlopSec is the default maximum stamp difference of a synchronized pair.
	DefaultSyncSlopSec = 1.0
)

// Config is the top level configuration.
type Config struct {
	ConfigFilePath string `json:"-"`

	DepthTopic     string                 `json:"depth_topic,omitempty"`
	DetectionTopic string                 `json:"detection_topic,omitempty"`
	OutputTopic    string                 `json:"output_topic,omitempty"`
	Sync           SyncConfig             `json:"sync"`
	Projector      map[string]interface{} `json:"projector"`
	LogLevel       string                 `json:"log_level,omitempty"`
	LogFile        string                 `json:"log_file,omitempty"`

	// Set by Ensure.
	ProjectorConfig projection.Config `json:"-"`
	Level           logging.Level     `json:"-"`
}

// SyncConfig configures how detection and depth messages are paired.
type SyncConfig struct {
	QueueSize int     `json:"queue_size,omitempty"`
	SlopSec   float64 `json:"slop_sec,omitempty"`
}

// Slop is the maximum stamp difference of a synchronized pair.
func (sc SyncConfig) Slop() time.Duration {
	return time.Duration(sc.SlopSec * float64(time.Second))
}

// Validate ensures all parts of the config are valid, filling in defaults.
func (sc *SyncConfig) Validate(path string) error {
	if sc.QueueSize < 0 {
		return errors.Errorf("%s: queue_size cannot be negative, got %d", path, sc.QueueSize)
	}
	if math.IsNaN(sc.SlopSec) || math.IsInf(sc.SlopSec, 0) || sc.SlopSec < 0 {
		return errors.Errorf("%s: slop_sec must be a non-negative number, got %v", path, sc.SlopSec)
	}
	if sc.QueueSize == 0 {
		sc.QueueSize = DefaultSyncQueueSize
	}
	if sc.SlopSec == 0 {
		sc.SlopSec = DefaultSyncSlopSec
	}
	return nil
}

// Ensure validates the config and fills in everything derived from it. Any error here is fatal
// at startup.
func (c *Config) Ensure() error {
	if err := c.Sync.Validate("sync"); err != nil {
		return err
	}

	if c.Projector == nil {
		return errors.New("projector: missing projector attributes")
	}
	var attrs projection.AttributeConfig
	if err := attrs.ConvertAttributes(c.Projector); err != nil {
		return errors.Wrap(err, "projector")
	}
	// intrinsics_file is relative to the config file
	if attrs.IntrinsicsFile != "" && !filepath.IsAbs(attrs.IntrinsicsFile) && c.ConfigFilePath != "" {
		attrs.IntrinsicsFile = filepath.Join(filepath.Dir(c.ConfigFilePath), attrs.IntrinsicsFile)
	}
	projectorConfig, err := attrs.ToConfig()
	if err != nil {
		return errors.Wrap(err, "projector")
	}
	c.ProjectorConfig = projectorConfig

	c.Level = logging.INFO
	if c.LogLevel != "" {
		level, err := logging.LevelFromString(c.LogLevel)
		if err != nil {
			return errors.Wrap(err, "log_level")
		}
		c.Level = level
	}
	return nil
}

// EnsureTopics checks that the topics needed to read a recorded session are set.
func (c *Config) EnsureTopics() error {
	if c.DepthTopic == "" {
		return errors.New("depth_topic is required")
	}
	if c.DetectionTopic == "" {
		return errors.New("detection_topic is required")
	}
	return nil
}
