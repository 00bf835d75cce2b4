package compare

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/xerrors"

	"pagediff/internal/storage"
)

// DefaultThreshold is the per-pixel tolerance applied when a caller does not
// choose one.
const DefaultThreshold = 0.1

type Style string

const (
	// StyleMask highlights every differing pixel in the diff image.
	StyleMask Style = "mask"
	// StyleRegions outlines clustered differing areas over the target image.
	StyleRegions Style = "regions"
)

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Request describes one comparison. Sources are storage locations (plain
// file paths for the file backend, s3:// URLs for the S3 backend).
// OutputKey, when set, receives the raw PNG bytes of the diff image.
type Request struct {
	BaselineSource string
	TargetSource   string
	Threshold      float64
	OutputKey      string
	Style          Style
}

// NewRequest returns a Request with the default threshold and mask style.
func NewRequest(baselineSource string, targetSource string) Request {
	return Request{
		BaselineSource: baselineSource,
		TargetSource:   targetSource,
		Threshold:      DefaultThreshold,
		Style:          StyleMask,
	}
}

type Metadata struct {
	BaselineSize Size    `json:"image1Size"`
	TargetSize   Size    `json:"image2Size"`
	Threshold    float64 `json:"threshold"`
	ComparedAt   string  `json:"comparedAtISO8601"`
}

type Result struct {
	DifferingPixels int64    `json:"differingPixels"`
	TotalPixels     int64    `json:"totalPixels"`
	DiffPercentage  float64  `json:"diffPercentage"`
	DiffImageBase64 string   `json:"diffImageBase64"`
	Metadata        Metadata `json:"metadata"`
}

// Engine runs comparisons against a storage backend. Each Compare call is
// independent; an Engine may be shared between goroutines.
type Engine struct {
	storage storage.Storage
	now     func() time.Time
}

func NewEngine(s storage.Storage) *Engine {
	return &Engine{
		storage: s,
		now:     time.Now,
	}
}

// Compare reads and decodes both sources, resizes them to the element-wise
// minimum footprint, runs the pixel differ, and returns the result. The
// diff image is persisted to OutputKey only after every other stage has
// succeeded, so a failed comparison never leaves a partial output behind.
func (e *Engine) Compare(ctx context.Context, request Request) (*Result, error) {
	differ, err := buildDiffer(request.Threshold, request.Style)
	if err != nil {
		return nil, err
	}

	baselineData, err := e.storage.Get(ctx, request.BaselineSource)
	if err != nil {
		return nil, &IOError{Location: request.BaselineSource, Err: err}
	}
	targetData, err := e.storage.Get(ctx, request.TargetSource)
	if err != nil {
		return nil, &IOError{Location: request.TargetSource, Err: err}
	}

	result, diffPNG, err := compareBytes(differ, request.Threshold, baselineData, request.BaselineSource, targetData, request.TargetSource, e.now)
	if err != nil {
		return nil, err
	}

	if request.OutputKey != "" {
		if _, err := e.storage.Put(ctx, request.OutputKey, diffPNG); err != nil {
			return nil, &IOError{Location: request.OutputKey, Err: err}
		}
	}

	return result, nil
}

// CompareBytes compares two encoded images already held in memory, without
// touching any storage backend.
func CompareBytes(baselineData []byte, targetData []byte, threshold float64, style Style) (*Result, error) {
	differ, err := buildDiffer(threshold, style)
	if err != nil {
		return nil, err
	}

	result, _, err := compareBytes(differ, threshold, baselineData, "baseline", targetData, "target", time.Now)
	return result, err
}

func buildDiffer(threshold float64, style Style) (Differ, error) {
	if threshold < 0 || threshold > 1 {
		return nil, &ComparisonError{
			Stage: "validation",
			Err:   xerrors.Errorf("threshold %g out of range [0, 1]", threshold),
		}
	}

	switch style {
	case "", StyleMask:
		return NewMaskDiff(threshold), nil
	case StyleRegions:
		return NewRegionDiff(threshold), nil
	default:
		return nil, &ComparisonError{
			Stage: "validation",
			Err:   xerrors.Errorf("unknown visualization style: %s", style),
		}
	}
}

func compareBytes(differ Differ, threshold float64, baselineData []byte, baselineLocation string, targetData []byte, targetLocation string, now func() time.Time) (*Result, []byte, error) {
	baselineImage, baselineSize, err := decodeImage(baselineData, baselineLocation)
	if err != nil {
		return nil, nil, err
	}
	targetImage, targetSize, err := decodeImage(targetData, targetLocation)
	if err != nil {
		return nil, nil, err
	}

	// The comparison footprint is the element-wise minimum of the two
	// intrinsic sizes. Both images are downsampled to it; the engine
	// never upsamples.
	width := min(baselineSize.Width, targetSize.Width)
	height := min(baselineSize.Height, targetSize.Height)

	diff := differ.Calculate(normalize(baselineImage, width, height), normalize(targetImage, width, height))

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, diff.Image); err != nil {
		return nil, nil, &ComparisonError{Stage: "diff image encoding", Err: err}
	}

	totalPixels := int64(width) * int64(height)
	result := &Result{
		DifferingPixels: diff.DifferingPixels,
		TotalPixels:     totalPixels,
		DiffPercentage:  float64(diff.DifferingPixels) / float64(totalPixels) * 100,
		DiffImageBase64: base64.StdEncoding.EncodeToString(buffer.Bytes()),
		Metadata: Metadata{
			BaselineSize: baselineSize,
			TargetSize:   targetSize,
			Threshold:    threshold,
			ComparedAt:   now().UTC().Format(time.RFC3339),
		},
	}

	return result, buffer.Bytes(), nil
}

func decodeImage(data []byte, location string) (image.Image, Size, error) {
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Size{}, &DecodeError{Location: location, Err: err}
	}

	bounds := decoded.Bounds()
	size := Size{Width: bounds.Dx(), Height: bounds.Dy()}
	if size.Width == 0 || size.Height == 0 {
		return nil, Size{}, &DecodeError{
			Location: location,
			Err:      xerrors.New("image has a zero-area footprint"),
		}
	}

	return decoded, size, nil
}

func normalize(source image.Image, width int, height int) *image.RGBA {
	normalized := image.NewRGBA(image.Rect(0, 0, width, height))

	bounds := source.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		draw.Draw(normalized, normalized.Bounds(), source, bounds.Min, draw.Src)
		return normalized
	}

	draw.ApproxBiLinear.Scale(normalized, normalized.Bounds(), source, bounds, draw.Src, nil)
	return normalized
}
