package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<Metall FromDate="01.03.2022" ToDate="01.04.2022" name="Metall">
  <Record Date="30.03.2022" Code="1"><Buy>5301,45</Buy><Sell>5301,45</Sell></Record>
  <Record Date="30.03.2022" Code="2"><Buy>68,35</Buy><Sell>68,35</Sell></Record>
  <Record Date="30.03.2022" Code="3"><Buy>2729,72</Buy><Sell>2729,72</Sell></Record>
  <Record Date="30.03.2022" Code="4"><Buy>6216,76</Buy><Sell>6216,76</Sell></Record>
  <Record Date="31.03.2022" Code="1"><Buy>5184,57</Buy><Sell>5184,57</Sell></Record>
  <Record Date="31.03.2022" Code="2"><Buy>66,92</Buy><Sell>66,92</Sell></Record>
</Metall>`

func testWindow() Window {
	return Window{
		Start: time.Date(2022, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2022, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCBRFetchGroupsRecordsByDate(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sampleXML))
	}))
	defer srv.Close()

	c := NewCBR(CBROptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, zerolog.Nop())

	days, err := c.FetchRates(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}

	if got := gotQuery["date_req1"]; len(got) != 1 || got[0] != "01.03.2022" {
		t.Fatalf("date_req1 query param wrong: %v", gotQuery)
	}
	if got := gotQuery["date_req2"]; len(got) != 1 || got[0] != "01.04.2022" {
		t.Fatalf("date_req2 query param wrong: %v", gotQuery)
	}

	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}

	first := days[0]
	if !first.Date.Equal(time.Date(2022, time.March, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("days must be sorted ascending, first is %s", first.Date)
	}
	if first.Gold == nil || !first.Gold.Equal(decimal.RequireFromString("5301.45")) {
		t.Fatalf("gold value wrong: %v", first.Gold)
	}
	if !first.Complete() {
		t.Fatal("first day has all four metals")
	}

	second := days[1]
	if second.Platinum != nil || second.Palladium != nil {
		t.Fatal("absent series must stay nil, not zero")
	}
	if second.Silver == nil || !second.Silver.Equal(decimal.RequireFromString("66.92")) {
		t.Fatalf("silver value wrong: %v", second.Silver)
	}
}

func TestCBRFetchEmptyWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><Metall FromDate="01.01.2000" ToDate="01.02.2000" name="Metall"></Metall>`))
	}))
	defer srv.Close()

	c := NewCBR(CBROptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())

	days, err := c.FetchRates(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("empty window is a valid outcome: %v", err)
	}
	if len(days) != 0 {
		t.Fatalf("expected no days, got %d", len(days))
	}
}

func TestCBRFetchHTTPErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCBR(CBROptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())

	_, err := c.FetchRates(context.Background(), testWindow())
	if err == nil {
		t.Fatal("HTTP 502 must be an error")
	}
	if !IsTransient(err) {
		t.Fatalf("HTTP failures are transient, got %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusBadGateway {
		t.Fatalf("expected FetchError with status, got %v", err)
	}
}

func TestCBRFetchConnectionErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewCBR(CBROptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())

	_, err := c.FetchRates(context.Background(), testWindow())
	if !IsTransient(err) {
		t.Fatalf("connection refused is transient, got %v", err)
	}
}

func TestCBRFetchMalformedBodyIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>robot check</body></html>`))
	}))
	defer srv.Close()

	c := NewCBR(CBROptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())

	_, err := c.FetchRates(context.Background(), testWindow())
	if err == nil {
		t.Fatal("malformed body must be an error")
	}
	if !IsParseError(err) {
		t.Fatalf("malformed bodies are parse errors, got %v", err)
	}
	if IsTransient(err) {
		t.Fatal("parse errors are not transient")
	}
}

func TestCBRFetchBadAmountIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><Metall name="Metall">
            <Record Date="30.03.2022" Code="1"><Buy>oops</Buy><Sell>oops</Sell></Record>
        </Metall>`))
	}))
	defer srv.Close()

	c := NewCBR(CBROptions{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())

	if _, err := c.FetchRates(context.Background(), testWindow()); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCBRFetchSendsCookie(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><Metall name="Metall"></Metall>`))
	}))
	defer srv.Close()

	c := NewCBR(CBROptions{BaseURL: srv.URL, Timeout: time.Second, Cookie: "__ddg1=abc"}, zerolog.Nop())

	if _, err := c.FetchRates(context.Background(), testWindow()); err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if gotCookie != "__ddg1=abc" {
		t.Fatalf("cookie header not forwarded: %q", gotCookie)
	}
}
