package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"

	"beltline.dev/internal/persistence/s3mirror"
)

type s3MirrorRuntime struct {
	enabled      bool
	rotateLayout string
	mirror       *s3mirror.Mirror
}

func buildS3MirrorRuntime(ctx context.Context, dataDir string, logger *log.Logger) (*s3MirrorRuntime, error) {
	cfg, ok := s3mirror.ConfigFromEnv()
	if !ok {
		return &s3MirrorRuntime{enabled: false}, nil
	}
	client, err := s3mirror.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m := s3mirror.New(client, cfg.Bucket, dataDir, strings.TrimSpace(os.Getenv("BL_S3_PREFIX")), s3mirror.Options{
		Workers:       envInt("BL_S3_UPLOAD_WORKERS", 2),
		QueueCapacity: envInt("BL_S3_QUEUE", 2048),
	}, logger)
	return &s3MirrorRuntime{
		enabled:      true,
		rotateLayout: "2006-01-02-15-04", // 1-minute segments to lower RPO.
		mirror:       m,
	}, nil
}

func (r *s3MirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *s3MirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *s3MirrorRuntime) Stats() (s3mirror.Stats, bool) {
	if r == nil || !r.enabled || r.mirror == nil {
		return s3mirror.Stats{}, false
	}
	return r.mirror.Stats(), true
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
