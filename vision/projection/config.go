package projection

import (
	"math"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/projection/rimage/transform"
)

// Config is everything the projector needs. It is built once at startup and never changes.
type Config struct {
	Intrinsics transform.PinholeCameraIntrinsics
	// RegionShrinkFactor scales each region's width and height before depth is sampled, so
	// that background pixels near the box edges are less likely to be included. Must be in (0, 1].
	RegionShrinkFactor float64
	// Parallelism caps the number of goroutines used per batch. Zero picks a default based on
	// the number of CPUs, one processes detections sequentially.
	Parallelism int
}

// Validate returns an error describing the first problem with the config.
func (cfg Config) Validate() error {
	if err := cfg.Intrinsics.CheckValid(); err != nil {
		return err
	}
	rf := cfg.RegionShrinkFactor
	if math.IsNaN(rf) || rf <= 0 || rf > 1 {
		return errors.Errorf("region shrink factor must be in (0, 1], got %v", rf)
	}
	if cfg.Parallelism < 0 {
		return errors.Errorf("parallelism cannot be negative, got %d", cfg.Parallelism)
	}
	return nil
}

// AttributeConfig is the attribute form of Config as it appears in a config file. The camera is
// given in exactly one of three ways: focal_length/cx/cy, the parameter names used by the ROS
// node; a full intrinsic_parameters block; or intrinsics_file, a JSON file holding such a block.
type AttributeConfig struct {
	FocalLength    *float64                           `json:"focal_length,omitempty"`
	Cx             *float64                           `json:"cx,omitempty"`
	Cy             *float64                           `json:"cy,omitempty"`
	Intrinsics     *transform.PinholeCameraIntrinsics `json:"intrinsic_parameters,omitempty"`
	IntrinsicsFile string                             `json:"intrinsics_file,omitempty"`
	RF             *float64                           `json:"rf,omitempty"`
	Parallelism    int                                `json:"parallelism,omitempty"`
}

// ConvertAttributes decodes an attribute map into the AttributeConfig. Unknown keys are an error.
func (ac *AttributeConfig) ConvertAttributes(am map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      ac,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return errors.Wrap(decoder.Decode(am), "cannot decode projector attributes")
}

// ToConfig checks that every required attribute is present and builds a validated Config.
func (ac *AttributeConfig) ToConfig() (Config, error) {
	var cfg Config
	pinhole := ac.FocalLength != nil || ac.Cx != nil || ac.Cy != nil
	switch {
	case ac.IntrinsicsFile != "":
		if ac.Intrinsics != nil || pinhole {
			return Config{}, errors.New("intrinsics_file cannot be combined with intrinsic_parameters or focal_length/cx/cy")
		}
		intrinsics, err := transform.LoadIntrinsicsFile(ac.IntrinsicsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Intrinsics = *intrinsics
	case ac.Intrinsics != nil:
		if pinhole {
			return Config{}, errors.New("specify either intrinsic_parameters or focal_length/cx/cy, not both")
		}
		cfg.Intrinsics = *ac.Intrinsics
	case ac.FocalLength == nil:
		return Config{}, errors.New("missing focal_length")
	case ac.Cx == nil:
		return Config{}, errors.New("missing cx")
	case ac.Cy == nil:
		return Config{}, errors.New("missing cy")
	default:
		cfg.Intrinsics = *transform.NewSquarePixelIntrinsics(*ac.FocalLength, *ac.Cx, *ac.Cy)
	}
	if ac.RF == nil {
		return Config{}, errors.New("missing rf")
	}
	cfg.RegionShrinkFactor = *ac.RF
	cfg.Parallelism = ac.Parallelism
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
