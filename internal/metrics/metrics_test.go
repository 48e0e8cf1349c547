package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitAndObservers(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, crawlerAdmissionsTotal)
	require.NotNil(t, crawlerActiveWorkers)

	before := testutil.ToFloat64(crawlerAdmissionsTotal.WithLabelValues("duplicate"))
	ObserveAdmission("duplicate")
	require.Equal(t, before+1, testutil.ToFloat64(crawlerAdmissionsTotal.WithLabelValues("duplicate")))

	IncActiveWorkers()
	active := testutil.ToFloat64(crawlerActiveWorkers)
	DecActiveWorkers()
	require.Equal(t, active-1, testutil.ToFloat64(crawlerActiveWorkers))

	SetFrontierDepth(7)
	require.Equal(t, 7.0, testutil.ToFloat64(crawlerFrontierDepth))

	ObserveRateLimitDelay("example.com", 250*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(crawlerRateLimitDelaysSeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
