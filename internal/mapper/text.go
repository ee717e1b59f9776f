package mapper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-collector/internal/models"
)

// TextEntity is one seven-line block of the text file.
type TextEntity string

// TextBlockSeparator joins blocks in a text file.
const TextBlockSeparator = "\n\n"

const (
	textDateLayout = "02.01.2006"
	textTimeLayout = "15:04"
)

// TextMapper renders records as human-readable blocks. Timestamps keep minute precision only.
type TextMapper struct{}

func (TextMapper) ToEntity(rec models.WeatherRecord) (TextEntity, error) {
	label := rec.WeatherType.Label()
	if label == "" {
		return "", mappingErr("domain to text", "weather_type", rec.WeatherType, models.ErrUnknownWeatherType)
	}
	ts := rec.Timestamp.UTC()
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", ts.Format(textDateLayout))
	fmt.Fprintf(&b, "Time: %s UTC\n", ts.Format(textTimeLayout))
	fmt.Fprintf(&b, "City: %s\n", rec.City)
	fmt.Fprintf(&b, "Temperature: %d °C\n", rec.Temperature)
	fmt.Fprintf(&b, "Weather type: %s\n", label)
	fmt.Fprintf(&b, "Sunrise: %s UTC\n", rec.Sunrise)
	fmt.Fprintf(&b, "Sunset: %s UTC", rec.Sunset)
	return TextEntity(b.String()), nil
}

func (TextMapper) ToDomain(entity TextEntity) (models.WeatherRecord, error) {
	const op = "text to domain"

	fields := make(map[string]string, 7)
	for _, line := range strings.Split(strings.TrimSpace(string(entity)), "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return models.WeatherRecord{}, mappingErr(op, "", line, errors.New(`line has no ": " separator`))
		}
		switch key {
		case "City", "Weather type":
			fields[key] = strings.TrimSpace(value)
		default:
			token, _, _ := strings.Cut(strings.TrimSpace(value), " ")
			fields[key] = token
		}
	}

	date, ok := fields["Date"]
	if !ok {
		return models.WeatherRecord{}, mappingErr(op, "Date", nil, errors.New("missing"))
	}
	clock, ok := fields["Time"]
	if !ok {
		return models.WeatherRecord{}, mappingErr(op, "Time", nil, errors.New("missing"))
	}
	ts, err := time.ParseInLocation(textDateLayout+" "+textTimeLayout, date+" "+clock, time.UTC)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "Date/Time", date+" "+clock, err)
	}

	temp, err := strconv.Atoi(fields["Temperature"])
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "Temperature", fields["Temperature"], err)
	}
	wt, err := models.WeatherTypeFromLabel(fields["Weather type"])
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "Weather type", fields["Weather type"], err)
	}
	sunrise, err := models.ParseTimeOfDay(fields["Sunrise"])
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "Sunrise", fields["Sunrise"], err)
	}
	sunset, err := models.ParseTimeOfDay(fields["Sunset"])
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "Sunset", fields["Sunset"], err)
	}

	rec, err := models.NewWeatherRecord(ts, fields["City"], temp, wt, sunrise, sunset)
	if err != nil {
		return models.WeatherRecord{}, mappingErr(op, "", nil, err)
	}
	return rec, nil
}

// SplitTextBlocks splits file content into blocks, ignoring surrounding blank lines.
func SplitTextBlocks(content string) []TextEntity {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if content == "" {
		return nil
	}
	var out []TextEntity
	for _, block := range strings.Split(content, TextBlockSeparator) {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, TextEntity(block))
		}
	}
	return out
}

// JoinTextBlocks is the inverse of SplitTextBlocks.
func JoinTextBlocks(blocks []TextEntity) string {
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = string(b)
	}
	return strings.Join(parts, TextBlockSeparator)
}
