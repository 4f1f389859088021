package web_fetch

import (
	"context"
	"time"

	"github.com/skillsmith/coursegen/tools/web_fetch/chromedp"
	"github.com/skillsmith/coursegen/tools/web_fetch/models"
	"github.com/skillsmith/coursegen/tools/web_fetch/plain"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	PlainFetcherType    FetcherType = "plain"
	ChromedpFetcherType FetcherType = "chromedp"
)

type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int, maxBytes int64) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case PlainFetcherType:
		return &plain.Fetch{Timeout: timeout, MaxChars: maxChars, MaxBytes: maxBytes}, nil
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars}, nil
	default:
		return nil, &Error{"unsupported fetcher type"}
	}
}

// Fallback tries the primary fetcher first and falls back to secondary when
// the primary yields no usable text (script-heavy pages).
type Fallback struct {
	Primary   WebFetcher
	Secondary WebFetcher
}

func (f Fallback) Exec(ctx context.Context, url string) (models.Result, error) {
	res, err := f.Primary.Exec(ctx, url)
	if err == nil && res.Status == 200 && res.Text != "" {
		return res, nil
	}
	if f.Secondary == nil {
		return res, err
	}
	return f.Secondary.Exec(ctx, url)
}
