// Package facilities fetches parking lot listings from the Hong Kong
// government car park API and normalizes them into schema.Lot.
package facilities

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/schema"
)

// DefaultBaseURL is the public car park information and vacancy endpoint.
const DefaultBaseURL = "https://api.data.gov.hk/v1/carpark-info-vacancy"

// maxPayload caps the response body read.
const maxPayload = 32 << 20

// Lang selects the language of names and addresses in the payload.
type Lang string

// Supported payload languages.
const (
	LangEnglish            Lang = "en_US"
	LangTraditionalChinese Lang = "zh_TW"
	LangSimplifiedChinese  Lang = "zh_CN"
)

// ParseLang maps a user-facing language tag to a Lang, defaulting to English.
func ParseLang(s string) Lang {
	switch s {
	case "zh_TW", "zh-TW", "zh-Hant", "zh_HK", "zh-HK":
		return LangTraditionalChinese
	case "zh_CN", "zh-CN", "zh-Hans", "zh":
		return LangSimplifiedChinese
	default:
		return LangEnglish
	}
}

// Source fetches lots over HTTP.
type Source struct {
	BaseURL string
	Client  *http.Client
	Logger  *log.Logger
}

// NewSource creates a source for baseURL ("" selects DefaultBaseURL).
func NewSource(baseURL string, timeout time.Duration) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Source{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		Logger:  log.New(os.Stderr, "[facilities] ", log.LstdFlags),
	}
}

// Fetch downloads and parses the private car listing.
//
// A transport failure is errs.KindNetwork, a non-200 answer is
// errs.KindTransport with the status, and an unreadable body is
// errs.KindMalformed. A readable body with no usable records returns
// ErrEmptyPayload.
func (s *Source) Fetch(ctx context.Context, lang Lang) ([]*schema.Lot, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid facilities URL %q: %w", s.BaseURL, err)
	}
	q := u.Query()
	q.Set("data", "info,vacancy")
	q.Set("vehicleTypes", "privateCar")
	q.Set("lang", string(lang))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build facilities request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, errs.E(errs.KindNetwork, "facilities request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Transport(resp.StatusCode, "facilities request rejected")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, errs.E(errs.KindNetwork, "failed to read facilities response", err)
	}

	lots, skipped, err := Parse(body, lang)
	if skipped > 0 && s.Logger != nil {
		s.Logger.Printf("skipped %d records without id or coordinates", skipped)
	}
	return lots, err
}
