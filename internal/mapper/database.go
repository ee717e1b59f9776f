package mapper

import (
	"time"

	"github.com/kjstillabower/weather-collector/internal/models"
)

// Row mirrors one weather_table row, in column order.
type Row struct {
	Timestamp   time.Time
	City        string
	Temperature int
	WeatherType string
	Sunrise     string
	Sunset      string
}

// Values returns the row's column values in insert order.
func (r Row) Values() []any {
	return []any{r.Timestamp, r.City, r.Temperature, r.WeatherType, r.Sunrise, r.Sunset}
}

// DatabaseMapper stores the weather type by name and times of day as HH:MM.
type DatabaseMapper struct{}

func (DatabaseMapper) ToEntity(rec models.WeatherRecord) (Row, error) {
	if !rec.WeatherType.Valid() {
		return Row{}, mappingErr("domain to row", "weather_type", rec.WeatherType, models.ErrUnknownWeatherType)
	}
	return Row{
		Timestamp:   models.TruncateTimestamp(rec.Timestamp),
		City:        rec.City,
		Temperature: rec.Temperature,
		WeatherType: string(rec.WeatherType),
		Sunrise:     rec.Sunrise.String(),
		Sunset:      rec.Sunset.String(),
	}, nil
}

func (DatabaseMapper) ToDomain(row Row) (models.WeatherRecord, error) {
	const op = "row to domain"
	wt, err := models.ParseWeatherType(row.WeatherType)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "weather_type", row.WeatherType, err)
	}
	sunrise, err := models.ParseTimeOfDay(row.Sunrise)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "sunrise", row.Sunrise, err)
	}
	sunset, err := models.ParseTimeOfDay(row.Sunset)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "sunset", row.Sunset, err)
	}
	rec, err := models.NewWeatherRecord(row.Timestamp, row.City, row.Temperature, wt, sunrise, sunset)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "", nil, err)
	}
	return rec, nil
}
