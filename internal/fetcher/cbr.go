package fetcher

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

const (
	metalRatesPath = "/scripts/xml_metall.asp"
	reqDateLayout  = "02.01.2006"
)

const (
	codeGold      = 1
	codeSilver    = 2
	codePlatinum  = 3
	codePalladium = 4
)

// CBROptions parameterise the central bank fetcher.
type CBROptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Cookie is sent verbatim; the endpoint sometimes sits behind an
	// anti-bot check that expects a browser session cookie.
	Cookie string
}

// CBR fetches daily precious metal rates from the central bank XML endpoint.
type CBR struct {
	opts    CBROptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCBR constructs a central bank rates fetcher.
func NewCBR(opts CBROptions, logger zerolog.Logger) *CBR {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.cbr.ru"
	}

	return &CBR{
		opts:    opts,
		logger:  logger.With().Str("component", "cbr_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchRates performs one request for the window and groups the response's
// per-metal records by date.
func (c *CBR) FetchRates(ctx context.Context, window Window) ([]DayRates, error) {
	endpoint := c.baseURL + metalRatesPath
	params := url.Values{}
	params.Set("date_req1", window.Start.Format(reqDateLayout))
	params.Set("date_req2", window.End.Format(reqDateLayout))
	requestURL := endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if c.opts.Cookie != "" {
		req.Header.Set("Cookie", c.opts.Cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: requestURL, Status: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: requestURL, Err: err}
	}

	days, err := parseMetalRates(payload, c.logger)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Time("window_start", window.Start).
		Time("window_end", window.End).
		Int("days", len(days)).
		Msg("window fetched")

	return days, nil
}

type metallResponse struct {
	XMLName xml.Name      `xml:"Metall"`
	Records []metalRecord `xml:"Record"`
}

type metalRecord struct {
	Date string `xml:"Date,attr"`
	Code int    `xml:"Code,attr"`
	Buy  string `xml:"Buy"`
	Sell string `xml:"Sell"`
}

func parseMetalRates(payload []byte, logger zerolog.Logger) ([]DayRates, error) {
	var doc metallResponse
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	decoder.CharsetReader = charsetReader
	if err := decoder.Decode(&doc); err != nil {
		return nil, &ParseError{Reason: "decode xml", Err: err}
	}

	byDate := make(map[time.Time]*DayRates)
	for _, record := range doc.Records {
		date, err := time.ParseInLocation(reqDateLayout, record.Date, time.UTC)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("record date %q", record.Date), Err: err}
		}

		value, err := parseAmount(record.Sell)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("sell amount %q", record.Sell), Err: err}
		}

		day, ok := byDate[date]
		if !ok {
			day = &DayRates{Date: date}
			byDate[date] = day
		}

		switch record.Code {
		case codeGold:
			day.Gold = value
		case codeSilver:
			day.Silver = value
		case codePlatinum:
			day.Platinum = value
		case codePalladium:
			day.Palladium = value
		default:
			logger.Debug().Int("code", record.Code).Str("date", record.Date).Msg("skipping unknown metal code")
		}
	}

	days := make([]DayRates, 0, len(byDate))
	for _, day := range byDate {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	return days, nil
}

// parseAmount handles the endpoint's comma decimal separator.
func parseAmount(raw string) (*decimal.Decimal, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// charsetReader tolerates the endpoint's windows-1251 declaration.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "windows-1251":
		return charmap.Windows1251.NewDecoder().Reader(input), nil
	case "", "utf-8":
		return input, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
}

var _ RateFetcher = (*CBR)(nil)
