package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{
			RunID:  runID,
			TS:     now.Add(time.Second),
			Stage:  progress.StagePageCrawled,
			URL:    "http://example.com/",
			Site:   "example.com",
			Status: crawler.StatusSuccess,
			Links:  7,
			Dur:    800 * time.Millisecond,
			Result: &crawler.CrawlResult{URL: "http://example.com/"},
		},
		{
			RunID:  runID,
			TS:     now.Add(2 * time.Second),
			Stage:  progress.StagePageCrawled,
			URL:    "http://example.com/missing",
			Site:   "example.com",
			Status: crawler.StatusFail,
			Result: &crawler.CrawlResult{URL: "http://example.com/missing"},
		},
		{RunID: runID, TS: now, Stage: progress.StagePageSkipped, URL: "http://example.com/", Note: "duplicate"},
		{RunID: runID, TS: now, Stage: progress.StagePageError, URL: "http://other.test/", Site: "other.test", Note: "busy"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("example.com", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pages.WithLabelValues("example.com", "fail")))
	require.Equal(t, 7.0, testutil.ToFloat64(sink.pageLinks.WithLabelValues("example.com")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.pageDuration, "crawler_page_duration_seconds"))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesSkipped.WithLabelValues("duplicate")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pageErrors.WithLabelValues("other.test")))

	done := []progress.Event{
		{RunID: runID, TS: now.Add(3 * time.Second), Stage: progress.StageRunDone, Pages: 2, Dur: 3 * time.Second},
		{RunID: runID, TS: now.Add(3 * time.Second), Stage: progress.StageRunDone, Pages: 2, Dur: 3 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), done))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
}

func TestPrometheusSinkFailedRun(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunDone, Note: "context canceled", Dur: time.Second},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "crawler_run_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
