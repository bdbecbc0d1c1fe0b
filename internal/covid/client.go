package covid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	appLog "covidboard/internal/log"
)

// DefaultEndpoint is the UK coronavirus data API.
const DefaultEndpoint = "https://api.coronavirus.data.gov.uk/v1/data"

// structure is the response field mapping requested from the API. The
// upstream metric names are renamed to the row field names used
// throughout this package, matching the CSV export headers.
var structure = map[string]string{
	"area_name":      "areaName",
	"date":           "date",
	"cum_deaths":     "cumDailyNsoDeathsByDeathDate",
	"hospital_cases": "hospitalCases",
	"new_cases":      "newCasesBySpecimenDate",
}

// Row is one day of data for one area. Metrics the API has no value for
// arrive as JSON null and stay nil.
type Row struct {
	AreaName      string `json:"area_name"`
	Date          string `json:"date"`
	CumDeaths     *int   `json:"cum_deaths"`
	HospitalCases *int   `json:"hospital_cases"`
	NewCases      *int   `json:"new_cases"`
}

type apiResponse struct {
	Length int   `json:"length"`
	Data   []Row `json:"data"`
}

// Client fetches daily statistics from the coronavirus data API.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a Client. endpoint may be empty to use the real API.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Fetch requests the configured metrics for one area. areaType
// "overview" selects the national series and omits the area name from
// the filter, as the API requires. Rows come back sorted most recent
// date first.
func (c *Client) Fetch(ctx context.Context, areaName, areaType string) ([]Row, error) {
	filters := "areaType=" + areaType
	if areaType != "overview" {
		filters += ";areaName=" + areaName
	}

	structureJSON, err := json.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("encode structure: %w", err)
	}

	q := url.Values{}
	q.Set("filters", filters)
	q.Set("structure", string(structureJSON))
	reqURL := c.endpoint + "?" + q.Encode()

	appLog.Info("covid API request", "filters", filters)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build covid request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("covid API request: %w", err)
	}
	defer resp.Body.Close()

	// 204 means the filter matched nothing; treat as empty data rather
	// than an error so the dashboard falls back to N/A.
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("covid API status %d: %s", resp.StatusCode, string(body))
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode covid response: %w", err)
	}

	sortRows(payload.Data)
	appLog.Debug("covid API response", "rows", len(payload.Data))
	return payload.Data, nil
}

// sortRows orders rows most recent date first. The API usually returns
// them that way already; dates are ISO so a string sort is enough.
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date > rows[j].Date
	})
}
