package ros

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/projection/rimage"
	"go.viam.com/projection/vision/objectdetection"
)

// Stamp is a ROS time.
type Stamp struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

// Time converts the stamp to a time.Time.
func (s Stamp) Time() time.Time {
	return time.Unix(s.Secs, s.Nsecs)
}

// Header is a std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Stamp  `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// ByteArray is a uint8[] message field. Bag JSON may carry it as a base64 string or as an
// array of numbers; both decode.
type ByteArray []byte

// UnmarshalJSON implements json.Unmarshaler.
func (ba *ByteArray) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return errors.Wrap(err, "cannot decode base64 byte array")
		}
		*ba = decoded
		return nil
	}
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return errors.Wrap(err, "byte array must be a base64 string or an array of numbers")
	}
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > math.MaxUint8 {
			return errors.Errorf("byte array value %d out of range at %d", v, i)
		}
		out[i] = byte(v)
	}
	*ba = out
	return nil
}

// ImageMessage is a sensor_msgs/Image as stored in a bag.
type ImageMessage struct {
	Meta Stamp `json:"meta"`
	Data struct {
		Header      Header    `json:"header"`
		Height      int       `json:"height"`
		Width       int       `json:"width"`
		Encoding    string    `json:"encoding"`
		IsBigendian uint8     `json:"is_bigendian"`
		Step        int       `json:"step"`
		Data        ByteArray `json:"data"`
	} `json:"data"`
}

// Stamp returns the header stamp of the image.
func (msg *ImageMessage) Stamp() time.Time {
	return msg.Data.Header.Stamp.Time()
}

// ToDepthMap copies the image into a depth map. Sample values are passed through unchanged, so
// the depth map is in whatever unit the sensor published.
func (msg *ImageMessage) ToDepthMap() (*rimage.DepthMap, error) {
	img := msg.Data
	var bytesPerPixel int
	var decode func([]byte, binary.ByteOrder) float64
	switch img.Encoding {
	case "32FC1":
		bytesPerPixel = 4
		decode = func(b []byte, order binary.ByteOrder) float64 {
			return float64(math.Float32frombits(order.Uint32(b)))
		}
	case "64FC1":
		bytesPerPixel = 8
		decode = func(b []byte, order binary.ByteOrder) float64 {
			return math.Float64frombits(order.Uint64(b))
		}
	case "16UC1", "mono16":
		bytesPerPixel = 2
		decode = func(b []byte, order binary.ByteOrder) float64 {
			return float64(order.Uint16(b))
		}
	default:
		return nil, errors.Errorf("unsupported depth image encoding %q", img.Encoding)
	}

	if img.Width < 0 || img.Height < 0 {
		return nil, errors.Errorf("bad depth image size (%d,%d)", img.Width, img.Height)
	}
	// every size is checked against len(img.Data) by division so huge headers cannot overflow.
	if img.Height > 0 && img.Width > len(img.Data)/bytesPerPixel {
		return nil, errors.Errorf("depth image has %d bytes, too few for a row of %d pixels", len(img.Data), img.Width)
	}
	step := img.Step
	if step == 0 {
		step = img.Width * bytesPerPixel
	}
	if step < img.Width*bytesPerPixel {
		return nil, errors.Errorf("row step %d too small for %d pixels of %s", step, img.Width, img.Encoding)
	}
	if img.Height > 0 && step > len(img.Data)/img.Height {
		return nil, errors.Errorf("depth image has %d bytes, need %d rows of %d", len(img.Data), img.Height, step)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if img.IsBigendian != 0 {
		order = binary.BigEndian
	}

	dm := rimage.NewEmptyDepthMap(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		row := img.Data[y*step:]
		for x := 0; x < img.Width; x++ {
			dm.Set(x, y, decode(row[x*bytesPerPixel:], order))
		}
	}
	return dm, nil
}

// Rect is the region of a cob_perception_msgs/Rect.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectionMessage is a single cob_perception_msgs/Detection. Only the fields the projector
// uses are decoded.
type DetectionMessage struct {
	Header   Header  `json:"header"`
	Label    string  `json:"label"`
	Detector string  `json:"detector"`
	Score    float64 `json:"score"`
	Mask     struct {
		ROI Rect `json:"roi"`
	} `json:"mask"`
}

// DetectionArrayMessage is a cob_perception_msgs/DetectionArray as stored in a bag.
type DetectionArrayMessage struct {
	Meta Stamp `json:"meta"`
	Data struct {
		Header     Header             `json:"header"`
		Detections []DetectionMessage `json:"detections"`
	} `json:"data"`
}

// Stamp returns the header stamp of the array.
func (msg *DetectionArrayMessage) Stamp() time.Time {
	return msg.Data.Header.Stamp.Time()
}

// ToDetections converts the detections in order, using each mask's roi as the region.
func (msg *DetectionArrayMessage) ToDetections() []objectdetection.Detection {
	dets := make([]objectdetection.Detection, 0, len(msg.Data.Detections))
	for _, d := range msg.Data.Detections {
		roi := d.Mask.ROI
		dets = append(dets, objectdetection.NewDetection(roi.X, roi.Y, roi.Width, roi.Height, d.Label, d.Score))
	}
	return dets
}

// DecodeImageMessages decodes raw bag messages as images.
func DecodeImageMessages(raw []json.RawMessage) ([]*ImageMessage, error) {
	msgs := make([]*ImageMessage, 0, len(raw))
	for i, data := range raw {
		var msg ImageMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, errors.Wrapf(err, "image message %d", i)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}

// DecodeDetectionArrayMessages decodes raw bag messages as detection arrays.
func DecodeDetectionArrayMessages(raw []json.RawMessage) ([]*DetectionArrayMessage, error) {
	msgs := make([]*DetectionArrayMessage, 0, len(raw))
	for i, data := range raw {
		var msg DetectionArrayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, errors.Wrapf(err, "detection array message %d", i)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, nil
}
