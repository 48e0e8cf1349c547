package modules

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

const (
	outerHTMLScript    = `document.documentElement.outerHTML`
	defaultMaxHeadings = 50
)

// Heading is one h1-h6 element.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// DocumentInfo is the document module's result.
type DocumentInfo struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Canonical   string    `json:"canonical,omitempty"`
	Lang        string    `json:"lang,omitempty"`
	Headings    []Heading `json:"headings"`
	HTMLBytes   int       `json:"html_bytes"`
	Error       string    `json:"error,omitempty"`
}

// Document parses the rendered DOM once the page has loaded.
type Document struct {
	maxHeadings int
	logger      *zap.Logger
	info        DocumentInfo
}

// NewDocument builds the document module. Settings: max_headings.
func NewDocument(host crawler.Host) crawler.Module {
	m := &Document{
		maxHeadings: intSetting(host.ModuleConfig(DocumentID), "max_headings", defaultMaxHeadings),
		logger:      host.Logger().Named(DocumentID),
	}
	m.Clean()
	host.On(crawler.EventPageOpenSuccess, func(args ...any) {
		page, ok := crawler.Arg[crawler.Page](args, 0)
		if !ok {
			return
		}
		m.capture(page)
	})
	return m
}

func (m *Document) capture(page crawler.Page) {
	var html string
	if err := page.Evaluate(outerHTMLScript, &html); err != nil {
		m.logger.Warn("read rendered html", zap.Error(err))
		m.info.Error = err.Error()
		return
	}
	info, err := parseDocument(html, m.maxHeadings)
	if err != nil {
		m.info.Error = err.Error()
		return
	}
	m.info = info
}

func parseDocument(html string, maxHeadings int) (DocumentInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DocumentInfo{}, fmt.Errorf("parse html: %w", err)
	}
	info := DocumentInfo{
		Title:     strings.TrimSpace(doc.Find("head title").First().Text()),
		Headings:  []Heading{},
		HTMLBytes: len(html),
	}
	if v, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		info.Description = strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		info.Canonical = strings.TrimSpace(v)
	}
	if v, ok := doc.Find("html").First().Attr("lang"); ok {
		info.Lang = v
	}
	doc.Find("h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(info.Headings) >= maxHeadings {
			return false
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return true
		}
		level := int(goquery.NodeName(s)[1] - '0')
		info.Headings = append(info.Headings, Heading{Level: level, Text: text})
		return true
	})
	return info, nil
}

// ID implements crawler.Module.
func (m *Document) ID() string { return DocumentID }

// Clean implements crawler.Module.
func (m *Document) Clean() {
	m.info = DocumentInfo{Headings: []Heading{}}
}

// Result implements crawler.Module.
func (m *Document) Result() any {
	out := m.info
	out.Headings = append([]Heading{}, m.info.Headings...)
	return out
}
