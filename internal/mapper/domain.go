package mapper

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/kjstillabower/weather-collector/internal/models"
)

const (
	kelvinOffset = 273
	// maxKelvin is the upper bound of a plausible reading.
	maxKelvin = 1000
)

// owmPayload is the subset of the OpenWeatherMap response the pipeline consumes.
// Pointer fields distinguish missing keys from zero values.
type owmPayload struct {
	Name    *string `json:"name"`
	Weather []struct {
		Main *string `json:"main"`
	} `json:"weather"`
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Sys *struct {
		Sunrise *float64 `json:"sunrise"`
		Sunset  *float64 `json:"sunset"`
	} `json:"sys"`
}

// DomainMapper converts raw provider payloads into WeatherRecords.
type DomainMapper struct {
	loc *time.Location
}

// NewDomainMapper returns a mapper rendering sunrise and sunset in loc; nil means UTC.
func NewDomainMapper(loc *time.Location) *DomainMapper {
	if loc == nil {
		loc = time.UTC
	}
	return &DomainMapper{loc: loc}
}

// ToDomain maps one payload. It does not mutate the payload.
func (m *DomainMapper) ToDomain(payload models.RawWeatherPayload) (models.WeatherRecord, error) {
	const op = "payload to domain"

	ts, ok := payload.Timestamp()
	if !ok {
		return models.WeatherRecord{}, mappingErr(op, models.TimestampKey, payload[models.TimestampKey], errors.New("missing batch timestamp"))
	}

	var p owmPayload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &p,
		TagName: "json",
	})
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "", nil, err)
	}
	if err := decoder.Decode(map[string]any(payload)); err != nil {
		return models.WeatherRecord{}, mappingErr(op, decodeErrorField(err), nil, err)
	}

	switch {
	case p.Name == nil:
		return models.WeatherRecord{}, mappingErr(op, "name", nil, errors.New("missing"))
	case len(p.Weather) == 0 || p.Weather[0].Main == nil:
		return models.WeatherRecord{}, mappingErr(op, "weather[0].main", nil, errors.New("missing"))
	case p.Main == nil || p.Main.Temp == nil:
		return models.WeatherRecord{}, mappingErr(op, "main.temp", nil, errors.New("missing"))
	case p.Sys == nil || p.Sys.Sunrise == nil:
		return models.WeatherRecord{}, mappingErr(op, "sys.sunrise", nil, errors.New("missing"))
	case p.Sys.Sunset == nil:
		return models.WeatherRecord{}, mappingErr(op, "sys.sunset", nil, errors.New("missing"))
	}

	wt, err := models.ParseWeatherType(*p.Weather[0].Main)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "weather[0].main", *p.Weather[0].Main, err)
	}

	celsius, err := KelvinToCelsius(*p.Main.Temp)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "main.temp", *p.Main.Temp, err)
	}

	rec, err := models.NewWeatherRecord(
		ts,
		*p.Name,
		celsius,
		wt,
		m.clock(*p.Sys.Sunrise),
		m.clock(*p.Sys.Sunset),
	)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "", nil, err)
	}
	return rec, nil
}

func (m *DomainMapper) clock(epoch float64) models.TimeOfDay {
	return models.TimeOfDayFrom(time.Unix(int64(epoch), 0).In(m.loc))
}

// KelvinToCelsius truncates the Kelvin reading before subtracting: 270.12 becomes -3.
// Non-finite, negative and implausibly large readings are rejected.
func KelvinToCelsius(kelvin float64) (int, error) {
	if math.IsNaN(kelvin) || kelvin < 0 || kelvin > maxKelvin {
		return 0, fmt.Errorf("temperature %v K out of range [0, %d]", kelvin, maxKelvin)
	}
	return int(math.Trunc(kelvin)) - kelvinOffset, nil
}

// decodeErrorField pulls the first field name out of a mapstructure error, which
// reports failures as "'main.temp' expected type ...".
func decodeErrorField(err error) string {
	var derr *mapstructure.Error
	if !errors.As(err, &derr) || len(derr.Errors) == 0 {
		return ""
	}
	msg := derr.Errors[0]
	if !strings.HasPrefix(msg, "'") {
		return ""
	}
	if end := strings.Index(msg[1:], "'"); end >= 0 {
		return msg[1 : end+1]
	}
	return ""
}
