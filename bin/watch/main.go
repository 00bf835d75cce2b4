package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/xerrors"

	"pagediff/internal/capture"
	"pagediff/internal/compare"
	"pagediff/internal/retry"
	"pagediff/internal/storage"
)

type WatchReport struct {
	BaselineSource string          `json:"baselineSource"`
	TargetPath     string          `json:"targetPath"`
	DiffPath       string          `json:"diffPath"`
	Severity       string          `json:"severity"`
	Result         *compare.Result `json:"result"`
}

type Watcher struct {
	capturer       capture.Capturer
	engine         *compare.Engine
	storage        storage.Storage
	logger         *slog.Logger
	url            string
	baselineSource string
	threshold      float64
	style          compare.Style
	callbackURL    string
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

func main() {
	_ = godotenv.Load()

	var schedule string
	var url string
	var baselineSource string
	var threshold float64
	var style string
	var storageBackend string
	var directory string
	var bucket string
	var callbackURL string
	var chromeDevtoolsProtocolURL string
	flag.StringVar(&schedule, "schedule", envOrDefaultValue("SCHEDULE", "@every 1h"), "Cron schedule for capture and compare runs")
	flag.StringVar(&url, "url", envOrDefaultValue("URL", ""), "URL to capture")
	flag.StringVar(&baselineSource, "baseline", envOrDefaultValue("BASELINE", ""), "Storage location of the baseline image")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", compare.DefaultThreshold), "Per-pixel difference tolerance in [0, 1]")
	flag.StringVar(&style, "style", envOrDefaultValue("STYLE", string(compare.StyleMask)), "Diff visualization style (mask or regions)")
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory for the file backend")
	flag.StringVar(&bucket, "bucket", envOrDefaultValue("BUCKET", ""), "Bucket for the s3 backend")
	flag.StringVar(&callbackURL, "callback-url", envOrDefaultValue("CALLBACK_URL", ""), "Callback URL to send results to")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")

	flag.Parse()

	if url == "" || baselineSource == "" {
		log.Fatalf("url, baseline not specified")
	}

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

	capturer, err := capture.NewPlaywrightCapturer(ctx, config)
	if err != nil {
		log.Fatalf("Failed to create capturer: %v", err)
	}

	logLevel := slog.LevelInfo
	if v, ok := os.LookupEnv("GO_LOG"); ok {
		_ = logLevel.UnmarshalText([]byte(v))
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	watcher := &Watcher{
		capturer:       capturer,
		engine:         compare.NewEngine(s),
		storage:        s,
		logger:         logger,
		url:            url,
		baselineSource: baselineSource,
		threshold:      threshold,
		style:          compare.Style(style),
		callbackURL:    callbackURL,
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := watcher.runOnce(ctx); err != nil {
			logger.Error("watch run failed", "error", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule %q: %v", schedule, err)
	}

	if err := watcher.runOnce(ctx); err != nil {
		logger.Error("watch run failed", "error", err)
	}

	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	<-c.Stop().Done()
	if err := capturer.Close(); err != nil {
		logger.Error("failed to close capturer", "error", err)
	}
}

func (w *Watcher) runOnce(ctx context.Context) error {
	target := capture.DefaultTarget(w.url)
	capture.ApplyFigmaDefaults(&target)

	captured, err := w.capturer.Capture(ctx, target)
	if err != nil {
		return xerrors.Errorf("failed to capture %s: %w", w.url, err)
	}

	timestamp := time.Now().Format("20060102150405")

	h := sha256.New()
	h.Write([]byte(w.url))
	urlHash := fmt.Sprintf("%x", h.Sum(nil))[:16]

	baseKey := fmt.Sprintf("pagediff/watch/%s/%s", urlHash, timestamp)

	targetPath, err := w.storage.Put(ctx, fmt.Sprintf("%s.%s", baseKey, target.Format), captured.Image)
	if err != nil {
		return xerrors.Errorf("failed to store captured screenshot: %w", err)
	}

	request := compare.NewRequest(w.baselineSource, targetPath)
	request.Threshold = w.threshold
	request.Style = w.style

	result, err := w.engine.Compare(ctx, request)
	if err != nil {
		return xerrors.Errorf("failed to compare against baseline: %w", err)
	}

	diffBytes, err := base64.StdEncoding.DecodeString(result.DiffImageBase64)
	if err != nil {
		return xerrors.Errorf("failed to decode diff image: %w", err)
	}
	diffPath, err := w.storage.Put(ctx, baseKey+".diff.png", diffBytes)
	if err != nil {
		return xerrors.Errorf("failed to store diff image: %w", err)
	}

	severity := compare.ClassifySeverity(result.DiffPercentage)
	w.logger.Info("comparison finished",
		slog.String("url", w.url),
		slog.String("targetPath", targetPath),
		slog.String("diffPath", diffPath),
		slog.Float64("diffPercentage", result.DiffPercentage),
		slog.String("severity", severity.String()),
	)

	if w.callbackURL == "" {
		return nil
	}

	report, err := json.Marshal(WatchReport{
		BaselineSource: w.baselineSource,
		TargetPath:     targetPath,
		DiffPath:       diffPath,
		Severity:       severity.String(),
		Result:         result,
	})
	if err != nil {
		return xerrors.Errorf("failed to encode report: %w", err)
	}

	return callback(ctx, w.callbackURL, report)
}

func callback(ctx context.Context, callbackURL string, data []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(data))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &retry.Transport{
			Base:          http.DefaultTransport,
			RetryStrategy: retry.NewExponentialBackOff(10*time.Millisecond, 1*time.Second, 3, nil),
			Policy:        retry.NewDefaultPolicy(),
		},
	}

	response, err := client.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	return nil
}
