package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"pagediff/internal/compare"
	"pagediff/internal/storage"
)

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

	var storageBackend string
	var directory string
	var bucket string
	var threshold float64
	var style string
	var output string
	var report bool
	flag.StringVar(&storageBackend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory for the file backend")
	flag.StringVar(&bucket, "bucket", envOrDefaultValue("BUCKET", ""), "Bucket for the s3 backend")
	flag.Float64Var(&threshold, "threshold", envOrDefaultValue("THRESHOLD", compare.DefaultThreshold), "Per-pixel difference tolerance in [0, 1]")
	flag.StringVar(&style, "style", envOrDefaultValue("STYLE", string(compare.StyleMask)), "Diff visualization style (mask or regions)")
	flag.StringVar(&output, "output", envOrDefaultValue("OUTPUT", ""), "Storage key for the diff image")
	flag.BoolVar(&report, "report", envOrDefaultValue("REPORT", false), "Print the narrative report instead of JSON")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("baseline, target not specified")
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

	request := compare.NewRequest(args[0], args[1])
	request.Threshold = threshold
	request.Style = compare.Style(style)
	request.OutputKey = output

	result, err := compare.NewEngine(s).Compare(ctx, request)
	if err != nil {
		log.Fatalf("Failed to compare images: %v", err)
	}

	if report {
		fmt.Print(compare.DescribeDifference(result))
		return
	}

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}
