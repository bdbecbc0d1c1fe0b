package covid

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	appLog "covidboard/internal/log"
)

// csvHeaders maps the published CSV export headers onto the row field
// names used by the API structure mapping, so CSV snapshots and API
// responses go through the same statistics code.
var csvHeaders = map[string]string{
	"areaCode":                     "area_code",
	"areaName":                     "area_name",
	"areaType":                     "area_type",
	"date":                         "date",
	"cumDailyNsoDeathsByDeathDate": "cum_deaths",
	"hospitalCases":                "hospital_cases",
	"newCasesBySpecimenDate":       "new_cases",
}

// ParseCSV reads a coronavirus data CSV export (as downloaded from the
// dashboard site) into rows, most recent date first. Empty metric cells
// become nil, matching absent values in API responses.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}

	headers := records[0]
	renamed := make([]string, len(headers))
	for i, h := range headers {
		if mapped, ok := csvHeaders[h]; ok {
			renamed[i] = mapped
		} else {
			appLog.Warn("unknown header in CSV file", "header", h)
			renamed[i] = h
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		var row Row
		for i, field := range rec {
			if i >= len(renamed) {
				break
			}
			switch renamed[i] {
			case "area_name":
				row.AreaName = field
			case "date":
				row.Date = field
			case "cum_deaths":
				row.CumDeaths = parseOptionalInt(field)
			case "hospital_cases":
				row.HospitalCases = parseOptionalInt(field)
			case "new_cases":
				row.NewCases = parseOptionalInt(field)
			}
		}
		rows = append(rows, row)
	}

	sortRows(rows)
	return rows, nil
}

// ParseCSVFile is a convenience wrapper around ParseCSV.
func ParseCSVFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()
	return ParseCSV(f)
}

func parseOptionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Some exports carry float-formatted counts.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int(f)
	}
	return &n
}
