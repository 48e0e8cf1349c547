package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StagePageCrawled Stage = "PAGE_CRAWLED"
	StagePageSkipped Stage = "PAGE_SKIPPED"
	StagePageError   Stage = "PAGE_ERROR"
	StageRunDone     Stage = "RUN_DONE"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// URL is the page the event refers to; empty for run events.
	URL string
	// Site is the lower-case host of URL.
	Site  string
	Depth int
	// Status is the page load status for PAGE_CRAWLED.
	Status crawler.LoadStatus
	// Links counts outbound links discovered on the page.
	Links int
	// Pages counts pages crawled during the run, set on RUN_DONE.
	Pages int64
	// Dur is the page crawl time, or the run time for RUN_DONE.
	Dur time.Duration
	// Result is the full crawl payload for PAGE_CRAWLED.
	Result *crawler.CrawlResult
	// Note carries a skip reason or error text. A RUN_DONE with a note
	// marks a failed run.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StagePageCrawled:
		if e.URL == "" || e.Site == "" {
			return errors.New("page crawled requires url and site")
		}
		if e.Status == "" {
			return errors.New("page crawled requires status")
		}
		if e.Result == nil {
			return errors.New("page crawled requires result")
		}
	case StagePageSkipped, StagePageError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
		if e.Note == "" {
			return fmt.Errorf("%s requires note", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 || e.Pages < 0 {
		return errors.New("duration and pages must be >= 0")
	}
	return nil
}

// Failed reports whether a RUN_DONE event ends the run in error.
func (e Event) Failed() bool {
	return e.Stage == StageRunDone && e.Note != ""
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
