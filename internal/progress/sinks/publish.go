package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
)

// PageMessage is the payload published for each crawled page.
type PageMessage struct {
	crawler.PageRecord
	Site string `json:"site"`
}

// Attributes exposes routing attributes to publishers that support them.
func (m PageMessage) Attributes() map[string]string {
	return map[string]string{
		"run_id": m.RunID,
		"site":   m.Site,
		"status": string(m.Status),
	}
}

// PublishSink publishes a PageMessage for every crawled page.
type PublishSink struct {
	pub    crawler.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublishSink constructs a PublishSink for topic.
func NewPublishSink(pub crawler.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes each PAGE_CRAWLED event and joins the failures.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage != progress.StagePageCrawled {
			continue
		}
		msg := PageMessage{PageRecord: pageRecord(evt), Site: evt.Site}
		id, err := s.pub.Publish(ctx, s.topic, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish page %s: %w", evt.URL, err))
			continue
		}
		s.logger.Debug("page published", zap.String("url", evt.URL), zap.String("message_id", id))
	}
	return errors.Join(errs...)
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
