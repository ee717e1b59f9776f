package mapper

import (
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/weather-collector/internal/models"
)

// JSONEntity is one element of the JSON file array. Temperature is a pointer so a
// missing key is not read as 0 °C.
type JSONEntity struct {
	Timestamp   string `json:"timestamp"`
	City        string `json:"city"`
	Temperature *int   `json:"temperature"`
	WeatherType string `json:"weather_type"`
	Sunrise     string `json:"sunrise"`
	Sunset      string `json:"sunset"`
}

// Naive ISO timestamps are read as UTC.
var jsonTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// JSONMapper stores the weather label and ISO-formatted times.
type JSONMapper struct{}

func (JSONMapper) ToEntity(rec models.WeatherRecord) (JSONEntity, error) {
	label := rec.WeatherType.Label()
	if label == "" {
		return JSONEntity{}, mappingErr("domain to json", "weather_type", rec.WeatherType, models.ErrUnknownWeatherType)
	}
	temperature := rec.Temperature
	return JSONEntity{
		Timestamp:   models.TruncateTimestamp(rec.Timestamp).Format(time.RFC3339),
		City:        rec.City,
		Temperature: &temperature,
		WeatherType: label,
		Sunrise:     isoClock(rec.Sunrise),
		Sunset:      isoClock(rec.Sunset),
	}, nil
}

func (JSONMapper) ToDomain(e JSONEntity) (models.WeatherRecord, error) {
	const op = "json to domain"

	ts, err := parseJSONTimestamp(e.Timestamp)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "timestamp", e.Timestamp, err)
	}
	if e.Temperature == nil {
		return models.WeatherRecord{}, mappingErr(op, "temperature", nil, errors.New("missing"))
	}
	wt, err := models.WeatherTypeFromLabel(e.WeatherType)
	if err != nil {
		// Older files stored the enum name.
		if byName, nameErr := models.ParseWeatherType(e.WeatherType); nameErr == nil {
			wt, err = byName, nil
		}
	}
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "weather_type", e.WeatherType, err)
	}
	sunrise, err := models.ParseTimeOfDay(e.Sunrise)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "sunrise", e.Sunrise, err)
	}
	sunset, err := models.ParseTimeOfDay(e.Sunset)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "sunset", e.Sunset, err)
	}
	rec, err := models.NewWeatherRecord(ts, e.City, *e.Temperature, wt, sunrise, sunset)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "", nil, err)
	}
	return rec, nil
}

func parseJSONTimestamp(s string) (time.Time, error) {
	for _, layout := range jsonTimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func isoClock(t models.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute)
}
