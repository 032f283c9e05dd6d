package runlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pmdss/internal/config"
	"pmdss/internal/etl"
)

// Archive writes every run report to object storage, one JSON object per
// run under etl-runs/YYYY/MM/DD/.
type Archive struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

func NewArchive(ctx context.Context, cfg config.MinIOConfig, log *slog.Logger) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		log.Info("created run archive bucket", "bucket", cfg.Bucket)
	}

	return &Archive{client: client, bucket: cfg.Bucket, log: log}, nil
}

// ObjectKey is where a report is archived.
func ObjectKey(report *etl.Report) string {
	started := report.StartedAt.UTC()
	return path.Join("etl-runs", started.Format("2006/01/02"), report.RunID+".json")
}

// Record implements etl.Recorder.
func (a *Archive) Record(ctx context.Context, report *etl.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	key := ObjectKey(report)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"run-status": string(report.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("archive run report %s: %w", key, err)
	}
	a.log.Debug("archived run report", "bucket", a.bucket, "key", key)
	return nil
}

// Fetch reads back an archived report.
func (a *Archive) Fetch(ctx context.Context, key string) (*etl.Report, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get run report %s: %w", key, err)
	}
	defer obj.Close()

	var report etl.Report
	if err := json.NewDecoder(obj).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode run report %s: %w", key, err)
	}
	return &report, nil
}
