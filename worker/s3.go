package worker

import (
	"github.com/tu-nv/action-classifier/predictor"
	"github.com/tu-nv/action-classifier/s3client"
	"context"
	"encoding/json"
	"path"
)

type s3Transactions interface {
	// saveResultFile returns the object key, or "" when archiving is off.
	saveResultFile(ctx context.Context, task *Task, result predictor.Result) (string, error)
	close()
}

type s3ClientWrapper struct {
	s3Client *s3client.Client
}

func (wrapper *s3ClientWrapper) close() {
	wrapper.s3Client.Close()
}

func (wrapper *s3ClientWrapper) saveResultFile(ctx context.Context, task *Task, result predictor.Result) (string, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	key := resultFileKey(task, result)
	if err = wrapper.s3Client.Upload(ctx, key, b); err != nil {
		return "", err
	}
	return key, nil
}

type noArchive struct{}

func (noArchive) saveResultFile(context.Context, *Task, predictor.Result) (string, error) {
	return "", nil
}

func (noArchive) close() {}

func resultFileKey(task *Task, result predictor.Result) string {
	return path.Join("predictions", result.Model, result.Version, task.id+".json")
}
