// Package stationdata fetches public station-network metadata: the station
// list, per-station GPS information and published detector timing offsets.
// A file cache decorator keeps a local copy so analyses keep working without
// network access.
package stationdata

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StationInfo is the public metadata of one station.
type StationInfo struct {
	Number    int     `json:"number"`
	Name      string  `json:"name"`
	Cluster   string  `json:"cluster"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// TimingOffsetRecord is one row of a station's published detector timing
// offset history: the validity start time and the four per-detector offsets
// in nanoseconds.
type TimingOffsetRecord struct {
	Timestamp int64
	Offsets   [4]float64
}

// Source provides station-network metadata. Implemented by Client and by
// the FileCache decorator.
type Source interface {
	StationNumbers(ctx context.Context) ([]int, error)
	StationInfo(ctx context.Context, number int) (StationInfo, error)
	DetectorTimingOffsets(ctx context.Context, number int) ([]TimingOffsetRecord, error)
}

// Client implements Source against the public station-network API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

const defaultBaseURL = "https://data.skyfront.org/api"

// NewClient creates an API client. An empty baseURL selects the public
// network endpoint.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// StationNumbers returns every station number known to the network,
// ascending.
func (c *Client) StationNumbers(ctx context.Context) ([]int, error) {
	var stations []struct {
		Number int `json:"number"`
	}
	if err := c.getJSON(ctx, "/stations/", &stations); err != nil {
		return nil, err
	}
	numbers := make([]int, len(stations))
	for i, s := range stations {
		numbers[i] = s.Number
	}
	return numbers, nil
}

// StationInfo returns one station's public metadata.
func (c *Client) StationInfo(ctx context.Context, number int) (StationInfo, error) {
	var info StationInfo
	err := c.getJSON(ctx, fmt.Sprintf("/station/%d/", number), &info)
	return info, err
}

// DetectorTimingOffsets returns a station's published offset history.
func (c *Client) DetectorTimingOffsets(ctx context.Context, number int) ([]TimingOffsetRecord, error) {
	body, err := c.get(ctx, fmt.Sprintf("/source/detector_timing_offsets/%d/", number))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseTimingOffsets(body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("station API error: status %d: %s", resp.StatusCode, body)
	}
	return resp.Body, nil
}

// ParseTimingOffsets reads the TSV offset format: one record per line,
// timestamp followed by four offsets, comment lines starting with '#'.
func ParseTimingOffsets(r io.Reader) ([]TimingOffsetRecord, error) {
	var records []TimingOffsetRecord
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, fmt.Errorf("malformed offset record %q", line)
		}
		var rec TimingOffsetRecord
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse offset timestamp %q: %w", fields[0], err)
		}
		rec.Timestamp = ts
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("parse offset value %q: %w", fields[i+1], err)
			}
			rec.Offsets[i] = v
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// FormatTimingOffsets writes records in the TSV offset format.
func FormatTimingOffsets(w io.Writer, records []TimingOffsetRecord) error {
	for _, rec := range records {
		_, err := fmt.Fprintf(w, "%d\t%g\t%g\t%g\t%g\n",
			rec.Timestamp, rec.Offsets[0], rec.Offsets[1], rec.Offsets[2], rec.Offsets[3])
		if err != nil {
			return err
		}
	}
	return nil
}
