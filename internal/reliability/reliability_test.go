package reliability

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/exposure/internal/database"
)

type recordingUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (r *recordingUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	r.input = input
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	r.body = body
	if r.err != nil {
		return nil, r.err
	}
	return &manager.UploadOutput{Key: input.Key}, nil
}

func TestS3ReportUploader_Upload(t *testing.T) {
	rec := &recordingUploader{}
	u := newS3ReportUploader("reports", rec, zerolog.Nop())

	require.NoError(t, u.Upload(context.Background(), "reports/ds/run.json", []byte(`{"a":1}`), "application/json"))
	assert.Equal(t, "reports", aws.ToString(rec.input.Bucket))
	assert.Equal(t, "reports/ds/run.json", aws.ToString(rec.input.Key))
	assert.Equal(t, "application/json", aws.ToString(rec.input.ContentType))
	assert.Equal(t, `{"a":1}`, string(rec.body))

	rec.err = errors.New("access denied")
	err := u.Upload(context.Background(), "k", nil, "application/json")
	assert.ErrorIs(t, err, rec.err)
}

func TestNewS3ReportUploader(t *testing.T) {
	_, err := NewS3ReportUploader(context.Background(), S3Config{}, zerolog.Nop())
	assert.Error(t, err)

	u, err := NewS3ReportUploader(context.Background(), S3Config{
		Bucket:    "reports",
		Region:    "auto",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "key",
		SecretKey: "secret",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "reports", u.bucket)
}

func TestMaintenanceJob(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(database.Config{Path: filepath.Join(dir, "exposure.db"), Name: "exposure"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	job := NewMaintenanceJob(db, dir, zerolog.Nop())
	assert.Equal(t, "database_maintenance", job.Name())

	orig := diskUsage
	t.Cleanup(func() { diskUsage = orig })

	diskUsage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 10 << 30}, nil
	}
	assert.NoError(t, job.Run())

	diskUsage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 1 << 20}, nil
	}
	assert.Error(t, job.Run())
}
