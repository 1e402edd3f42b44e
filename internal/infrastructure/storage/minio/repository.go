package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"path/filepath"
	"strconv"

	"github.com/minio/minio-go/v7"

	"github.com/bbowles1/HIPPO/internal/domain/similarity"
	"github.com/bbowles1/HIPPO/internal/infrastructure/monitoring/logging"
	"github.com/bbowles1/HIPPO/pkg/errors"
)

const matrixContentType = "text/tab-separated-values"

// MatrixStore uploads the local matrix file and a diagnostics document under
// <prefix><run id>/.
type MatrixStore struct {
	client *MinIOClient
	prefix string
	logger logging.Logger
}

var _ similarity.ReportSink = (*MatrixStore)(nil)

// NewMatrixStore creates a sink writing below prefix.
func NewMatrixStore(client *MinIOClient, prefix string, log logging.Logger) *MatrixStore {
	return &MatrixStore{client: client, prefix: prefix, logger: logging.OrNop(log)}
}

// Name implements similarity.ReportSink.
func (s *MatrixStore) Name() string { return "minio" }

// ObjectKey returns the key of name within the run's folder.
func (s *MatrixStore) ObjectKey(runID, name string) string {
	return s.prefix + path.Join(runID, name)
}

// Publish implements similarity.ReportSink.
func (s *MatrixStore) Publish(ctx context.Context, report *similarity.RunReport) error {
	meta := map[string]string{
		"run-id":           report.RunID,
		"cases":            strconv.Itoa(report.Matrix.Len()),
		"unmapped-percent": strconv.FormatFloat(report.Diagnostics.UnmappedPercent, 'f', 2, 64),
	}

	matrixKey := s.ObjectKey(report.RunID, filepath.Base(report.OutputPath))
	info, err := s.client.client.FPutObject(ctx, s.client.bucket, matrixKey, report.OutputPath, minio.PutObjectOptions{
		ContentType:  matrixContentType,
		UserMetadata: meta,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload matrix").WithDetail(matrixKey)
	}

	doc, err := json.Marshal(report.Diagnostics)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode diagnostics")
	}
	diagKey := s.ObjectKey(report.RunID, "diagnostics.json")
	if _, err := s.client.client.PutObject(ctx, s.client.bucket, diagKey, bytes.NewReader(doc), int64(len(doc)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: meta,
	}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload diagnostics").WithDetail(diagKey)
	}

	s.logger.Info("matrix uploaded",
		logging.String("bucket", s.client.bucket),
		logging.String("key", matrixKey),
		logging.Int64("bytes", info.Size),
	)
	return nil
}
