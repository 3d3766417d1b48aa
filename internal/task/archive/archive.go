// Package archive implements the Archive Task: bundling a job's
// result_keys into a single ZIP object. Each object is copied from the
// object store into a ZIP built in memory, and the finished ZIP is then
// uploaded in one piece.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixtools/pixtools/internal/model"
	"github.com/pixtools/pixtools/internal/repository/job"
	"github.com/pixtools/pixtools/internal/storage/object"
)

// Task bundles a job's processed results into a ZIP archive.
type Task struct {
	jobs  *job.Repository
	store *object.Store
}

// New creates an archive Task.
func New(jobs *job.Repository, store *object.Store) *Task {
	return &Task{jobs: jobs, store: store}
}

// Handle fetches every object in jobID's result_keys, bundles them into a
// deterministically-named ZIP, uploads it, and writes the archive key
// back. Failures here are non-fatal to the job: it remains COMPLETED
// without an archive key.
func (t *Task) Handle(ctx context.Context, jobID uuid.UUID) error {
	j, err := t.jobs.Load(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if len(j.ResultKeys) == 0 {
		zlog.Logger.Info().Str("job_id", jobID.String()).Msg("archive: no result keys to bundle")
		return nil
	}

	data, err := t.build(ctx, j.ResultKeys)
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}

	key := object.ArchiveKey(jobID.String())
	if err := t.store.PutProcessed(ctx, key, bytes.NewReader(data), int64(len(data)), "application/zip"); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	if err := t.jobs.SetArchiveKey(ctx, jobID, key); err != nil {
		return fmt.Errorf("set archive key: %w", err)
	}

	return nil
}

func (t *Task) build(ctx context.Context, resultKeys map[model.OperationTag]string) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	for tag, key := range resultKeys {
		if err := t.writeEntry(ctx, zw, tag, key); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Task) writeEntry(ctx context.Context, zw *zip.Writer, tag model.OperationTag, key string) error {
	ext, _ := tag.Extension()
	name := fmt.Sprintf("%s.%s", tag, ext)

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}

	reader, err := t.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}
