package mapper

import "github.com/kjstillabower/weather-collector/internal/models"

// EntityMapper converts between the domain record and a backend representation.
type EntityMapper[E any] interface {
	ToEntity(rec models.WeatherRecord) (E, error)
	ToDomain(entity E) (models.WeatherRecord, error)
}

var (
	_ EntityMapper[Row]        = DatabaseMapper{}
	_ EntityMapper[TextEntity] = TextMapper{}
	_ EntityMapper[JSONEntity] = JSONMapper{}
)
