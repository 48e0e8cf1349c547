package sinks

import (
	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
	"github.com/JakeFAU/headless-page-crawler/internal/progress"
)

// pageRecord flattens a PAGE_CRAWLED event into the persisted page shape.
func pageRecord(evt progress.Event) crawler.PageRecord {
	rec := crawler.PageRecord{
		RunID:      evt.RunUUID().String(),
		URL:        evt.URL,
		Depth:      evt.Depth,
		Status:     evt.Status,
		Links:      []string{},
		Results:    map[string]any{},
		CrawledAt:  evt.TS.UTC(),
		DurationMs: evt.Dur.Milliseconds(),
	}
	if evt.Result != nil {
		rec.ID = evt.Result.ID
		if evt.Result.Links != nil {
			rec.Links = evt.Result.Links
		}
		if evt.Result.Results != nil {
			rec.Results = evt.Result.Results
		}
	}
	return rec
}
