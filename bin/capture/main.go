package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"pagediff/internal/capture"
	"pagediff/internal/storage"
)

type CaptureOutput struct {
	ScreenshotPath string `json:"screenshotPath"`
	MetadataPath   string `json:"metadataPath"`
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ", ")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

func parseClip(s string) (*capture.Clip, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, xerrors.Errorf("clip must be x,y,width,height: %s", s)
	}

	values := make([]float64, 4)
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, xerrors.Errorf("invalid clip component %q: %w", part, err)
		}
		values[i] = value
	}

	return &capture.Clip{X: values[0], Y: values[1], Width: values[2], Height: values[3]}, nil
}

func main() {
	_ = godotenv.Load()

	var storageBackend string
	var directory string
	var bucket string
	var format string
	var quality int
	var scale float64
	var viewportWidth int
	var viewportHeight int
	var waitSelector string
	var delay time.Duration
	var fullPage bool
	var clip string
	var chromeDevtoolsProtocolURL string
	var requestHeaders stringList
	var maskSelectors stringList
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory for the file backend")
	flag.StringVar(&bucket, "bucket", envOrDefaultValue("BUCKET", ""), "Bucket for the s3 backend")
	flag.StringVar(&format, "format", envOrDefaultValue("FORMAT", "png"), "Output format (png or jpeg)")
	flag.IntVar(&quality, "quality", envOrDefaultValue("QUALITY", 85), "JPEG quality")
	flag.Float64Var(&scale, "scale", envOrDefaultValue("SCALE", 1.0), "Device scale factor")
	flag.IntVar(&viewportWidth, "viewport-width", envOrDefaultValue("VIEWPORT_WIDTH", 1920), "Viewport width in pixels")
	flag.IntVar(&viewportHeight, "viewport-height", envOrDefaultValue("VIEWPORT_HEIGHT", 1080), "Viewport height in pixels")
	flag.StringVar(&waitSelector, "wait-selector", envOrDefaultValue("WAIT_SELECTOR", ""), "CSS selector to wait for before capturing")
	flag.DurationVar(&delay, "delay", envOrDefaultValue("DELAY", time.Duration(0)), "Fixed delay before capturing")
	flag.BoolVar(&fullPage, "full-page", envOrDefaultValue("FULL_PAGE", true), "Capture the full page")
	flag.StringVar(&clip, "clip", envOrDefaultValue("CLIP", ""), "Pixel rectangle to capture as x,y,width,height")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.Var(&requestHeaders, "H", "Add HTTP header (can be used multiple times)")
	flag.Var(&maskSelectors, "mask", "CSS selector to cover with a black overlay before capturing (can be used multiple times)")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("url not specified")
	}
	url := args[0]

	ctx := context.Background()

	s, err := storage.New(ctx, storage.Config{
		Backend:   storageBackend,
		Directory: directory,
		Bucket:    bucket,
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	config := capture.DefaultPlaywrightConfig()
	if chromeDevtoolsProtocolURL != "" {
		config.ChromeDevtoolsProtocolURL = chromeDevtoolsProtocolURL
	}
	if display := os.Getenv("DISPLAY"); display != "" {
		config.Headless = false
	}

	capturer, err := capture.NewPlaywrightCapturer(ctx, config)
	if err != nil {
		log.Fatalf("Failed to create capturer: %v", err)
	}
	defer capturer.Close()

	target := capture.DefaultTarget(url)
	target.Format = format
	target.Quality = quality
	target.DeviceScaleFactor = scale
	target.ViewportWidth = viewportWidth
	target.ViewportHeight = viewportHeight
	target.WaitSelector = waitSelector
	target.Delay = delay
	target.FullPage = fullPage
	if clip != "" {
		parsed, err := parseClip(clip)
		if err != nil {
			log.Fatalf("Failed to parse clip: %v", err)
		}
		target.Clip = parsed
	}
	if len(requestHeaders) > 0 {
		target.Headers = make(map[string]string)
		for _, header := range requestHeaders {
			parts := strings.SplitN(header, ":", 2)
			if len(parts) == 2 {
				target.Headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
			}
		}
	}
	target.MaskSelectors = maskSelectors
	capture.ApplyFigmaDefaults(&target)

	result, err := capturer.Capture(ctx, target)
	if err != nil {
		log.Fatalf("Failed to capture screenshot: %v", err)
	}

	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		log.Fatalf("Failed to encode capture metadata: %v", err)
	}

	timestamp := time.Now().Format("20060102150405")

	h := sha256.New()
	h.Write([]byte(url))
	urlHash := fmt.Sprintf("%x", h.Sum(nil))[:16]

	baseKey := fmt.Sprintf("pagediff/capture/%s/%s", urlHash, timestamp)

	var imagePath string
	var metadataPath string

	{
		eg, ctx := errgroup.WithContext(ctx)

		eg.Go(func() error {
			imageKey := fmt.Sprintf("%s.%s", baseKey, target.Format)
			path, err := s.Put(ctx, imageKey, result.Image)
			if err != nil {
				return err
			}
			imagePath = path
			return nil
		})

		eg.Go(func() error {
			metadataKey := fmt.Sprintf("%s.json", baseKey)
			path, err := s.Put(ctx, metadataKey, metadata)
			if err != nil {
				return err
			}
			metadataPath = path
			return nil
		})

		if err := eg.Wait(); err != nil {
			log.Fatalf("Failed to upload: %v", err)
		}
	}

	if err := json.NewEncoder(os.Stdout).Encode(CaptureOutput{
		ScreenshotPath: imagePath,
		MetadataPath:   metadataPath,
	}); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}
