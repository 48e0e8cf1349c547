// Package crawler defines the types and capability contracts shared by the
// page worker, the headless page-session engine, the extraction modules and
// the dispatcher that drives many workers.
package crawler
