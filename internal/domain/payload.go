package domain

import (
	"encoding/json"
	"fmt"
)

// Category groups canonical types that share a payload shape.
type Category string

const (
	CategoryNone       Category = ""
	CategoryFlood      Category = "flood"
	CategoryCyclone    Category = "cyclone"
	CategoryEarthquake Category = "earthquake"
	CategoryWildfire   Category = "wildfire"
	CategoryVolcano    Category = "volcano"
	CategoryDrought    Category = "drought"
	CategoryWeather    Category = "weather"
)

// payloadCategories is also the membership table for the Type enumeration.
var payloadCategories = map[Type]Category{
	TypeEarthquake:       CategoryEarthquake,
	TypeTsunami:          CategoryNone,
	TypeFlood:            CategoryFlood,
	TypeFlashFlood:       CategoryFlood,
	TypeCoastalFlood:     CategoryFlood,
	TypeCyclone:          CategoryCyclone,
	TypeHurricane:        CategoryCyclone,
	TypeTyphoon:          CategoryCyclone,
	TypeSevereStorm:      CategoryWeather,
	TypeThunderstorm:     CategoryWeather,
	TypeWinterStorm:      CategoryWeather,
	TypeTornado:          CategoryWeather,
	TypeExtremeHeat:      CategoryWeather,
	TypeExtremeWeather:   CategoryWeather,
	TypeVolcano:          CategoryVolcano,
	TypeVolcanicEruption: CategoryVolcano,
	TypeDrought:          CategoryDrought,
	TypeWildfire:         CategoryWildfire,
	TypeLandslide:        CategoryNone,
	TypeAvalanche:        CategoryNone,
}

// Category returns the payload category events of type t carry.
func (t Type) Category() Category {
	return payloadCategories[t]
}

// Payload is a type-specific measurement attached to an Event. The set of
// implementations is closed to this package.
type Payload interface {
	Category() Category
	isPayload()
}

type FloodPayload struct {
	WaterLevel       float64 `json:"waterLevel"`
	Rainfall         float64 `json:"rainfall"`
	AffectedArea     float64 `json:"affectedArea,omitempty"`
	EvacuationStatus string  `json:"evacuationStatus,omitempty"`
}

type CyclonePayload struct {
	StormCategory int          `json:"category"`
	WindSpeed     float64      `json:"windSpeed"`
	Pressure      float64      `json:"pressure"`
	StormSurge    float64      `json:"stormSurge"`
	PredictedPath [][2]float64 `json:"predictedPath,omitempty"` // [lon, lat] pairs
}

type EarthquakePayload struct {
	Magnitude        float64 `json:"magnitude"`
	Depth            float64 `json:"depth"`
	TsunamiPotential bool    `json:"tsunamiPotential"`
}

type WildfirePayload struct {
	Brightness float64 `json:"brightness"`
}

type VolcanoPayload struct {
	AlertLevel     string  `json:"alertLevel"`
	AshCloudHeight float64 `json:"ashCloudHeight,omitempty"`
}

type DroughtPayload struct {
	Severity      string  `json:"severity"`
	Precipitation float64 `json:"precipitation,omitempty"`
}

// WeatherPayload carries the point-weather readings behind storm, heat and
// generic extreme-weather events.
type WeatherPayload struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Rain        float64 `json:"rain,omitempty"`
}

func (FloodPayload) Category() Category      { return CategoryFlood }
func (CyclonePayload) Category() Category    { return CategoryCyclone }
func (EarthquakePayload) Category() Category { return CategoryEarthquake }
func (WildfirePayload) Category() Category   { return CategoryWildfire }
func (VolcanoPayload) Category() Category    { return CategoryVolcano }
func (DroughtPayload) Category() Category    { return CategoryDrought }
func (WeatherPayload) Category() Category    { return CategoryWeather }

func (FloodPayload) isPayload()      {}
func (CyclonePayload) isPayload()    {}
func (EarthquakePayload) isPayload() {}
func (WildfirePayload) isPayload()   {}
func (VolcanoPayload) isPayload()    {}
func (DroughtPayload) isPayload()    {}
func (WeatherPayload) isPayload()    {}

// payloadEnvelope is the wire form of a Payload: the category tag plus the
// variant's fields.
type payloadEnvelope struct {
	Category Category        `json:"category"`
	Data     json.RawMessage `json:"data"`
}

// MarshalPayload encodes p with its category tag. A nil payload encodes as null.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Category(), err)
	}
	return json.Marshal(payloadEnvelope{Category: p.Category(), Data: data})
}

// UnmarshalPayload decodes a tagged payload. null or empty input yields nil.
func UnmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal payload envelope: %w", err)
	}

	var (
		p   Payload
		err error
	)
	switch env.Category {
	case CategoryFlood:
		p, err = decodeAs[FloodPayload](env.Data)
	case CategoryCyclone:
		p, err = decodeAs[CyclonePayload](env.Data)
	case CategoryEarthquake:
		p, err = decodeAs[EarthquakePayload](env.Data)
	case CategoryWildfire:
		p, err = decodeAs[WildfirePayload](env.Data)
	case CategoryVolcano:
		p, err = decodeAs[VolcanoPayload](env.Data)
	case CategoryDrought:
		p, err = decodeAs[DroughtPayload](env.Data)
	case CategoryWeather:
		p, err = decodeAs[WeatherPayload](env.Data)
	default:
		return nil, fmt.Errorf("unknown payload category %q", env.Category)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Category, err)
	}
	return p, nil
}

func decodeAs[T Payload](data json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
