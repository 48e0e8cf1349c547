package headless

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/JakeFAU/headless-page-crawler/internal/crawler"
)

// handleTargetEvent translates CDP events into relayed page events. It runs
// on chromedp's reader goroutine and must not block.
func (p *Page) handleTargetEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		p.onDialog(e)
	case *runtime.EventBindingCalled:
		if e.Name == callbackBinding {
			p.relay(crawler.EventCallback, e.Payload)
		}
	case *runtime.EventConsoleAPICalled:
		msg, line, source := consoleMessage(e)
		p.relay(crawler.EventConsoleMessage, msg, line, source)
	case *runtime.EventExceptionThrown:
		msg, trace := exceptionMessage(e.ExceptionDetails)
		p.relay(crawler.EventError, msg, trace)
	case *runtime.EventExecutionContextCreated:
		if p.isDefaultMainContext(e.Context) {
			p.relay(crawler.EventInitialized)
		}
	case *page.EventFileChooserOpened:
		p.relay(crawler.EventFilePicker, string(e.Mode))
	case *page.EventFrameStartedLoading:
		if p.isMainFrame(e.FrameID) {
			p.relay(crawler.EventLoadStarted)
		}
	case *page.EventWindowOpen:
		p.relay(crawler.EventPageCreated, e.URL)
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			p.setMainFrame(e.Frame.ID)
			p.relay(crawler.EventURLChanged, e.Frame.URL+e.Frame.URLFragment)
		}
	case *page.EventNavigatedWithinDocument:
		if p.isMainFrame(e.FrameID) {
			p.relay(crawler.EventURLChanged, e.URL)
		}
	case *network.EventRequestWillBeSent:
		p.onRequest(e)
	case *network.EventResponseReceived:
		p.onResponse(e)
	case *network.EventLoadingFailed:
		p.onLoadingFailed(e)
	case *network.EventLoadingFinished:
		id := e.RequestID
		p.post(func() { delete(p.requests, id) })
	}
}

func (p *Page) relay(event crawler.Event, args ...any) {
	p.post(func() { p.fire(event, args...) })
}

func (p *Page) onDialog(e *page.EventJavascriptDialogOpening) {
	switch e.Type {
	case page.DialogTypeAlert:
		p.relay(crawler.EventAlert, e.Message)
	case page.DialogTypeConfirm:
		p.relay(crawler.EventConfirm, e.Message)
	case page.DialogTypePrompt:
		p.relay(crawler.EventPrompt, e.Message, e.DefaultPrompt)
	}
	if p.acceptDialog != nil {
		p.acceptDialog(e)
	}
}

func (p *Page) onRequest(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	req := crawler.Request{
		ID:     string(e.RequestID),
		URL:    e.Request.URL,
		Method: e.Request.Method,
		Type:   string(e.Type),
		Frame:  string(e.FrameID),
		Time:   wallTime(e.WallTime),
	}
	navigation := e.Type == network.ResourceTypeDocument && string(e.RequestID) == string(e.LoaderID)
	initiator := "other"
	if e.Initiator != nil && e.Initiator.Type != "" {
		initiator = string(e.Initiator.Type)
	}
	main := p.isMainFrame(e.FrameID)

	p.post(func() {
		p.requests[e.RequestID] = req.URL
		if navigation {
			p.fire(crawler.EventNavigationRequested, req.URL, initiator, true, main)
		}
		p.fire(crawler.EventResourceRequested, req, req.ID)
	})
}

func (p *Page) onResponse(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	resp := crawler.Response{
		ID:          string(e.RequestID),
		URL:         e.Response.URL,
		Status:      int(e.Response.Status),
		StatusText:  e.Response.StatusText,
		ContentType: e.Response.MimeType,
		Type:        string(e.Type),
		Bytes:       int64(e.Response.EncodedDataLength),
	}
	p.relay(crawler.EventResourceReceived, resp)
}

func (p *Page) onLoadingFailed(e *network.EventLoadingFailed) {
	id := e.RequestID
	base := crawler.ResourceError{
		ID:        string(id),
		Type:      string(e.Type),
		ErrorText: e.ErrorText,
		Canceled:  e.Canceled,
	}
	timedOut := strings.Contains(e.ErrorText, "TIMED_OUT")
	p.post(func() {
		resErr := base
		resErr.URL = p.requests[id]
		delete(p.requests, id)
		p.fire(crawler.EventResourceError, resErr)
		if timedOut {
			p.fire(crawler.EventResourceTimeout, resErr)
		}
	})
}

type contextAuxData struct {
	IsDefault bool        `json:"isDefault"`
	FrameID   cdp.FrameID `json:"frameId"`
}

func (p *Page) isDefaultMainContext(desc *runtime.ExecutionContextDescription) bool {
	if desc == nil || len(desc.AuxData) == 0 {
		return false
	}
	var aux contextAuxData
	if err := json.Unmarshal([]byte(desc.AuxData), &aux); err != nil {
		return false
	}
	return aux.IsDefault && p.isMainFrame(aux.FrameID)
}

func consoleMessage(e *runtime.EventConsoleAPICalled) (string, int, string) {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		parts = append(parts, remoteObjectText(arg))
	}
	var (
		line   int
		source string
	)
	if e.StackTrace != nil && len(e.StackTrace.CallFrames) > 0 {
		frame := e.StackTrace.CallFrames[0]
		line = int(frame.LineNumber) + 1
		source = frame.URL
	}
	return strings.Join(parts, " "), line, source
}

func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if obj.Type == runtime.TypeString && len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal([]byte(obj.Value), &s); err == nil {
			return s
		}
	}
	if obj.Description != "" {
		return obj.Description
	}
	if len(obj.Value) > 0 {
		return string(obj.Value)
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	return string(obj.Type)
}

func exceptionMessage(details *runtime.ExceptionDetails) (string, []crawler.StackFrame) {
	trace := []crawler.StackFrame{}
	if details == nil {
		return "", trace
	}
	msg := details.Text
	if details.Exception != nil && details.Exception.Description != "" {
		msg = details.Exception.Description
	}
	if details.StackTrace != nil {
		for _, frame := range details.StackTrace.CallFrames {
			trace = append(trace, crawler.StackFrame{
				File:     frame.URL,
				Line:     int(frame.LineNumber) + 1,
				Function: frame.FunctionName,
			})
		}
	}
	return msg, trace
}

func wallTime(t *cdp.TimeSinceEpoch) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time()
}
