package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// WeatherType is the provider weather category, stored by name.
type WeatherType string

const (
	WeatherThunderstorm WeatherType = "THUNDERSTORM"
	WeatherDrizzle      WeatherType = "DRIZZLE"
	WeatherRain         WeatherType = "RAIN"
	WeatherSnow         WeatherType = "SNOW"
	WeatherMist         WeatherType = "MIST"
	WeatherSmoke        WeatherType = "SMOKE"
	WeatherHaze         WeatherType = "HAZE"
	WeatherDust         WeatherType = "DUST"
	WeatherFog          WeatherType = "FOG"
	WeatherSand         WeatherType = "SAND"
	WeatherAsh          WeatherType = "ASH"
	WeatherSquall       WeatherType = "SQUALL"
	WeatherTornado      WeatherType = "TORNADO"
	WeatherClear        WeatherType = "CLEAR"
	WeatherClouds       WeatherType = "CLOUDS"
)

// weatherLabels holds the localized label written to text and JSON files.
var weatherLabels = map[WeatherType]string{
	WeatherThunderstorm: "Гроза",
	WeatherDrizzle:      "Изморось",
	WeatherRain:         "Дождь",
	WeatherSnow:         "Снег",
	WeatherMist:         "Туманная дымка",
	WeatherSmoke:        "Копоть",
	WeatherHaze:         "Мгла",
	WeatherDust:         "Пыль",
	WeatherFog:          "Туман",
	WeatherSand:         "Песок",
	WeatherAsh:          "Пепел",
	WeatherSquall:       "Шквал",
	WeatherTornado:      "Торнадо",
	WeatherClear:        "Ясно",
	WeatherClouds:       "Облачно",
}

var weatherTypesByLabel = func() map[string]WeatherType {
	m := make(map[string]WeatherType, len(weatherLabels))
	for wt, label := range weatherLabels {
		m[label] = wt
	}
	return m
}()

// ErrUnknownWeatherType is returned when a category or label is outside the fixed vocabulary.
var ErrUnknownWeatherType = errors.New("unknown weather type")

// WeatherTypes returns all 15 weather types in declaration order.
func WeatherTypes() []WeatherType {
	return []WeatherType{
		WeatherThunderstorm, WeatherDrizzle, WeatherRain, WeatherSnow, WeatherMist,
		WeatherSmoke, WeatherHaze, WeatherDust, WeatherFog, WeatherSand,
		WeatherAsh, WeatherSquall, WeatherTornado, WeatherClear, WeatherClouds,
	}
}

// ParseWeatherType matches a provider category (e.g. "Clouds") case-insensitively.
func ParseWeatherType(category string) (WeatherType, error) {
	wt := WeatherType(strings.ToUpper(strings.TrimSpace(category)))
	if !wt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownWeatherType, category)
	}
	return wt, nil
}

// WeatherTypeFromLabel is the inverse of Label.
func WeatherTypeFromLabel(label string) (WeatherType, error) {
	wt, ok := weatherTypesByLabel[strings.TrimSpace(label)]
	if !ok {
		return "", fmt.Errorf("%w: label %q", ErrUnknownWeatherType, label)
	}
	return wt, nil
}

// Valid reports whether wt belongs to the fixed vocabulary.
func (wt WeatherType) Valid() bool {
	_, ok := weatherLabels[wt]
	return ok
}

// Label returns the localized label, or "" for an invalid type.
func (wt WeatherType) Label() string {
	return weatherLabels[wt]
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// TimeOfDayFrom takes the hour and minute of t in its own location.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS"; seconds are dropped.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayFrom(t), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// WeatherRecord is one normalized observation for a city.
type WeatherRecord struct {
	Timestamp   time.Time
	City        string
	Temperature int
	WeatherType WeatherType
	Sunrise     TimeOfDay
	Sunset      TimeOfDay
}

// NewWeatherRecord builds a record with the timestamp in UTC truncated to whole seconds
// and the city trimmed of surrounding whitespace.
func NewWeatherRecord(ts time.Time, city string, temperature int, wt WeatherType, sunrise, sunset TimeOfDay) (WeatherRecord, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return WeatherRecord{}, errors.New("city is required")
	}
	if ts.IsZero() {
		return WeatherRecord{}, errors.New("timestamp is required")
	}
	if !wt.Valid() {
		return WeatherRecord{}, fmt.Errorf("%w: %q", ErrUnknownWeatherType, string(wt))
	}
	return WeatherRecord{
		Timestamp:   TruncateTimestamp(ts),
		City:        city,
		Temperature: temperature,
		WeatherType: wt,
		Sunrise:     sunrise,
		Sunset:      sunset,
	}, nil
}

// TruncateTimestamp drops sub-second precision and converts to UTC. Idempotent.
func TruncateTimestamp(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Second)
}

// Equal compares records field by field, timestamps by instant.
func (r WeatherRecord) Equal(o WeatherRecord) bool {
	return r.Timestamp.Equal(o.Timestamp) &&
		r.City == o.City &&
		r.Temperature == o.Temperature &&
		r.WeatherType == o.WeatherType &&
		r.Sunrise == o.Sunrise &&
		r.Sunset == o.Sunset
}

// TimestampKey is the payload key the client stamps with the batch time.
const TimestampKey = "timestamp"

// RawWeatherPayload is the provider's JSON object, untouched except for TimestampKey.
type RawWeatherPayload map[string]any

// Timestamp returns the injected batch timestamp, if present.
func (p RawWeatherPayload) Timestamp() (time.Time, bool) {
	ts, ok := p[TimestampKey].(time.Time)
	return ts, ok
}

// WithTimestamp returns a shallow copy of p stamped with ts.
func (p RawWeatherPayload) WithTimestamp(ts time.Time) RawWeatherPayload {
	out := make(RawWeatherPayload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[TimestampKey] = ts
	return out
}
