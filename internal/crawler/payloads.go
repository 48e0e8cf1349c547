package crawler

import "time"

// Request describes a network request observed by the page session.
type Request struct {
	ID     string    `json:"id"`
	URL    string    `json:"url"`
	Method string    `json:"method"`
	Type   string    `json:"type"`
	Frame  string    `json:"frame"`
	Time   time.Time `json:"time"`
}

// Response describes a network response observed by the page session.
type Response struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Status      int    `json:"status"`
	StatusText  string `json:"status_text"`
	ContentType string `json:"content_type"`
	Type        string `json:"type"`
	Bytes       int64  `json:"bytes"`
}

// ResourceError describes a request that failed to load.
type ResourceError struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Type      string `json:"type"`
	ErrorText string `json:"error_text"`
	Canceled  bool   `json:"canceled"`
}

// StackFrame is one entry of a JavaScript stack trace.
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}
