package model

import (
	"context"
	"fmt"
	"os"
)

// Source fetches raw model bytes.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return data, nil
}

func (s FileSource) String() string {
	return "file://" + s.Path
}

// Downloader is the part of s3client.Client a model source needs.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Bucket() string
}

type S3Source struct {
	Client Downloader
	Key    string
}

func (s S3Source) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.Client.Download(ctx, s.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoad, s, err)
	}
	return data, nil
}

func (s S3Source) String() string {
	return fmt.Sprintf("s3://%s/%s", s.Client.Bucket(), s.Key)
}
