package rimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// depthMapMagic prefixes the binary depth map format ("DEPTHF64" little-endian).
const depthMapMagic = uint64(0x3436464854504544)

// maxDepthMapSamples caps width*height (half a gigabyte of samples) so a corrupt header cannot
// trigger a huge allocation.
const maxDepthMapSamples = 1 << 26

// ParseDepthMap reads a depth map from a file. Files ending in .png are decoded as 16-bit or
// 8-bit grayscale images, everything else is read as the binary format; a trailing .gz
// decompresses first.
func ParseDepthMap(fn string) (*DepthMap, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrap(err, "error opening depth map file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var r io.Reader = f
	name := fn
	if filepath.Ext(name) == ".gz" {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "error reading gzip header")
		}
		defer utils.UncheckedErrorFunc(gr.Close)
		r = gr
		name = strings.TrimSuffix(name, ".gz")
	}

	if strings.EqualFold(filepath.Ext(name), ".png") {
		img, err := png.Decode(r)
		if err != nil {
			return nil, errors.Wrap(err, "error decoding png depth map")
		}
		return ConvertImageToDepthMap(img)
	}
	return ReadDepthMap(bufio.NewReader(r))
}

// ReadDepthMap reads the binary depth map format: magic, uint64 width, uint64 height, then
// width*height float64 samples in row-major order, all little-endian.
func ReadDepthMap(r *bufio.Reader) (*DepthMap, error) {
	magic, err := readNext(r)
	if err != nil {
		return nil, err
	}
	if magic != depthMapMagic {
		return nil, errors.Errorf("not a depth map file (magic %#x)", magic)
	}

	rawWidth, err := readNext(r)
	if err != nil {
		return nil, err
	}
	rawHeight, err := readNext(r)
	if err != nil {
		return nil, err
	}
	if rawWidth > maxDepthMapSamples || rawHeight > maxDepthMapSamples ||
		(rawWidth != 0 && rawHeight > maxDepthMapSamples/rawWidth) {
		return nil, errors.Errorf("bad width or height for depth map %v %v", rawWidth, rawHeight)
	}

	dm := NewEmptyDepthMap(int(rawWidth), int(rawHeight))
	for i := range dm.data {
		raw, err := readNext(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading sample %d", i)
		}
		dm.data[i] = math.Float64frombits(raw)
	}
	return dm, nil
}

func readNext(r io.Reader) (uint64, error) {
	data := make([]byte, 8)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, errors.Wrap(err, "short depth map read")
	}
	return binary.LittleEndian.Uint64(data), nil
}

// WriteToFile writes the depth map in the binary format, gzipped when fn ends in .gz.
func (dm *DepthMap) WriteToFile(fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	var out io.Writer = f
	var gout *gzip.Writer
	if filepath.Ext(fn) == ".gz" {
		gout = gzip.NewWriter(f)
		out = gout
	}

	if err := dm.WriteBinary(out); err != nil {
		return err
	}
	if gout != nil {
		if err := gout.Close(); err != nil {
			return err
		}
	}
	return f.Sync()
}

// WriteBinary writes the depth map in the binary format.
func (dm *DepthMap) WriteBinary(out io.Writer) error {
	bw := bufio.NewWriter(out)
	buf := make([]byte, 8)
	put := func(v uint64) error {
		binary.LittleEndian.PutUint64(buf, v)
		_, err := bw.Write(buf)
		return err
	}

	if err := put(depthMapMagic); err != nil {
		return err
	}
	if err := put(uint64(dm.width)); err != nil {
		return err
	}
	if err := put(uint64(dm.height)); err != nil {
		return err
	}
	for _, d := range dm.data {
		if err := put(math.Float64bits(d)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ConvertImageToDepthMap takes a grayscale image and copies its pixel values into a depth map
// without any scaling.
func ConvertImageToDepthMap(img image.Image) (*DepthMap, error) {
	bounds := img.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	switch ii := img.(type) {
	case *image.Gray16:
		for y := 0; y < dm.height; y++ {
			for x := 0; x < dm.width; x++ {
				dm.Set(x, y, float64(ii.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < dm.height; y++ {
			for x := 0; x < dm.width; x++ {
				dm.Set(x, y, float64(ii.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
	default:
		return nil, errors.Errorf("cannot convert image type %T to a depth map", img)
	}
	return dm, nil
}
