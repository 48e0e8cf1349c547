package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
)

// BlobSink writes one JSON document per crawled page to a BlobStore at
// prefix/<run id>/<sha256(url)>.json.
type BlobSink struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger
}

// NewBlobSink constructs a BlobSink.
func NewBlobSink(store crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) *BlobSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobSink{store: store, hasher: hasher, prefix: prefix, logger: logger}
}

// ObjectPath returns the blob path used for a page of a run.
func (s *BlobSink) ObjectPath(runID, url string) (string, error) {
	digest, err := s.hasher.Hash([]byte(url))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return path.Join(s.prefix, runID, digest+".json"), nil
}

// Consume uploads every PAGE_CRAWLED event in the batch. A failed upload does
// not stop the rest of the batch; all failures are returned joined.
func (s *BlobSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StagePageCrawled {
			continue
		}
		if err := s.put(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *BlobSink) put(ctx context.Context, evt progress.Event) error {
	rec := pageRecord(evt)
	p, err := s.ObjectPath(rec.RunID, rec.URL)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", rec.URL, err)
	}
	uri, err := s.store.PutObject(ctx, p, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("put page %s: %w", rec.URL, err)
	}
	s.logger.Debug("page document stored", zap.String("url", rec.URL), zap.String("uri", uri))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *BlobSink) Close(context.Context) error {
	return nil
}
