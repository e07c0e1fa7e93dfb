package cli

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/projection/vision/objectdetection"
	"go.viam.com/projection/vision/projection"
)

// detectionJSON is a detection as read from and written to JSON files.
type detectionJSON struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// resultJSON is a detection together with its projected position. Position is null for skipped
// detections.
type resultJSON struct {
	detectionJSON
	Position *positionJSON     `json:"position"`
	Status   projection.Status `json:"status"`
	Error    string            `json:"error,omitempty"`
}

// bagLineJSON is one synchronized pair of a recorded session.
type bagLineJSON struct {
	Topic      string       `json:"topic,omitempty"`
	Stamp      time.Time    `json:"stamp"`
	DepthStamp time.Time    `json:"depth_stamp"`
	Results    []resultJSON `json:"results"`
}

func readDetections(path string) ([]objectdetection.Detection, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read detections")
	}
	var dets []detectionJSON
	if err := json.Unmarshal(data, &dets); err != nil {
		return nil, errors.Wrapf(err, "cannot decode detections from %s", path)
	}
	return lo.Map(dets, func(d detectionJSON, _ int) objectdetection.Detection {
		return objectdetection.NewDetection(d.X, d.Y, d.Width, d.Height, d.Label, d.Score)
	}), nil
}

func toResultsJSON(results projection.Results) []resultJSON {
	return lo.Map(results, func(r projection.Result, _ int) resultJSON {
		det := r.Detection
		out := resultJSON{
			detectionJSON: detectionJSON{
				X:      det.Region.Min.X,
				Y:      det.Region.Min.Y,
				Width:  det.Width(),
				Height: det.Height(),
				Label:  det.Label,
				Score:  det.Score,
			},
			Status: r.Status,
		}
		if r.Position != nil {
			out.Position = &positionJSON{X: r.Position.X, Y: r.Position.Y, Z: r.Position.Z}
		}
		if r.Err != nil {
			out.Error = r.Err.Error()
		}
		return out
	})
}
