package store

import (
	"encoding/json"
	"time"
)

// ForecastRecord is one raw record from the Elia Open Data API. Pointer
// fields keep the null/absent distinction so missing values reach the
// database as NULL instead of zero.
type ForecastRecord struct {
	Datetime                string   `json:"datetime"`
	ResolutionCode          *string  `json:"resolutioncode"`
	OffshoreOnshore         *string  `json:"offshoreonshore"`
	Region                  *string  `json:"region"`
	GridConnectionType      *string  `json:"gridconnectiontype"`
	Measured                *float64 `json:"measured"`
	MonitoredCapacity       *float64 `json:"monitoredcapacity"`
	MostRecentForecast      *float64 `json:"mostrecentforecast"`
	MostRecentConfidence10  *float64 `json:"mostrecentconfidence10"`
	MostRecentConfidence90  *float64 `json:"mostrecentconfidence90"`
	DayAhead11hForecast     *float64 `json:"dayahead11hforecast"`
	DayAhead11hConfidence10 *float64 `json:"dayahead11hconfidence10"`
	DayAhead11hConfidence90 *float64 `json:"dayahead11hconfidence90"`
	DayAheadForecast        *float64 `json:"dayaheadforecast"`
	DayAheadConfidence10    *float64 `json:"dayaheadconfidence10"`
	DayAheadConfidence90    *float64 `json:"dayaheadconfidence90"`
	WeekAheadForecast       *float64 `json:"weekaheadforecast"`
	WeekAheadConfidence10   *float64 `json:"weekaheadconfidence10"`
	WeekAheadConfidence90   *float64 `json:"weekaheadconfidence90"`
	LoadFactor              *float64 `json:"loadfactor"`
	DecrementalBidID        *string  `json:"decrementalbidid"`
}

// stamp is the parsed timestamp plus the calendar columns derived from it.
type stamp struct {
	text    string
	year    int
	month   int
	day     int
	weekday int
	hour    int
	minute  int
}

// parseStamp parses an ISO-8601 timestamp and derives the calendar columns
// from its wall-clock reading. The stored text keeps the source offset, so
// the same upstream record always produces the same natural key.
func parseStamp(raw string) (stamp, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return stamp{}, err
	}
	return stampOf(t), nil
}

func stampOf(t time.Time) stamp {
	return stamp{
		text:    t.Format(time.RFC3339),
		year:    t.Year(),
		month:   int(t.Month()),
		day:     t.Day(),
		weekday: isoWeekday(t),
		hour:    t.Hour(),
		minute:  t.Minute(),
	}
}

// isoWeekday maps Go's Sunday-based weekday to ISO 8601 (Monday=1..Sunday=7).
func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// Table binds a forecast table to the row builder that fills its columns.
type Table struct {
	Name    string
	Columns []string
	values  func(rec *ForecastRecord, ts stamp) []any
}

// Wind describes tbl_wind_data. Wind is split per zone and connection type,
// hence the wider natural key and the decremental bid column.
var Wind = Table{
	Name: "tbl_wind_data",
	Columns: []string{
		"datetime", "year", "month", "day", "weekday", "hour", "minute",
		"resolutioncode", "offshoreonshore", "region", "gridconnectiontype",
		"measured", "monitoredcapacity",
		"mostrecentforecast", "mostrecentconfidence10", "mostrecentconfidence90",
		"dayahead11hforecast", "dayahead11hconfidence10", "dayahead11hconfidence90",
		"dayaheadforecast", "dayaheadconfidence10", "dayaheadconfidence90",
		"weekaheadforecast", "weekaheadconfidence10", "weekaheadconfidence90",
		"loadfactor", "decrementalbidid",
	},
	values: func(rec *ForecastRecord, ts stamp) []any {
		return []any{
			ts.text, ts.year, ts.month, ts.day, ts.weekday, ts.hour, ts.minute,
			rec.ResolutionCode, rec.OffshoreOnshore, rec.Region, rec.GridConnectionType,
			rec.Measured, rec.MonitoredCapacity,
			rec.MostRecentForecast, rec.MostRecentConfidence10, rec.MostRecentConfidence90,
			rec.DayAhead11hForecast, rec.DayAhead11hConfidence10, rec.DayAhead11hConfidence90,
			rec.DayAheadForecast, rec.DayAheadConfidence10, rec.DayAheadConfidence90,
			rec.WeekAheadForecast, rec.WeekAheadConfidence10, rec.WeekAheadConfidence90,
			rec.LoadFactor, rec.DecrementalBidID,
		}
	},
}

// Solar describes tbl_solar_data.
var Solar = Table{
	Name: "tbl_solar_data",
	Columns: []string{
		"datetime", "year", "month", "day", "weekday", "hour", "minute",
		"resolutioncode", "region",
		"measured", "monitoredcapacity",
		"mostrecentforecast", "mostrecentconfidence10", "mostrecentconfidence90",
		"dayahead11hforecast", "dayahead11hconfidence10", "dayahead11hconfidence90",
		"dayaheadforecast", "dayaheadconfidence10", "dayaheadconfidence90",
		"weekaheadforecast", "weekaheadconfidence10", "weekaheadconfidence90",
		"loadfactor",
	},
	values: func(rec *ForecastRecord, ts stamp) []any {
		return []any{
			ts.text, ts.year, ts.month, ts.day, ts.weekday, ts.hour, ts.minute,
			rec.ResolutionCode, rec.Region,
			rec.Measured, rec.MonitoredCapacity,
			rec.MostRecentForecast, rec.MostRecentConfidence10, rec.MostRecentConfidence90,
			rec.DayAhead11hForecast, rec.DayAhead11hConfidence10, rec.DayAhead11hConfidence90,
			rec.DayAheadForecast, rec.DayAheadConfidence10, rec.DayAheadConfidence90,
			rec.WeekAheadForecast, rec.WeekAheadConfidence10, rec.WeekAheadConfidence90,
			rec.LoadFactor,
		}
	},
}

// ParseRecord converts one API record into a row of column values for t.
// A record whose timestamp is missing or malformed yields nil: it is
// dropped, not fatal, so one bad record never sinks a whole file.
func ParseRecord(t Table, rec *ForecastRecord) []any {
	ts, err := parseStamp(rec.Datetime)
	if err != nil {
		return nil
	}
	return t.values(rec, ts)
}

// decodeRecords reads a daily file body: normally a JSON array, but a
// single object is accepted and treated as a one-record file.
func decodeRecords(data []byte) ([]ForecastRecord, error) {
	var records []ForecastRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}
	var one ForecastRecord
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []ForecastRecord{one}, nil
}
