package domain

import (
	"math"
	"strings"
)

// Metric names understood by Classify.
const (
	MetricMagnitude   = "magnitude"
	MetricBrightness  = "brightness"
	MetricWaterLevel  = "waterLevel"
	MetricRainfall    = "rainfall"
	MetricWindSpeed   = "windSpeed"
	MetricPressure    = "pressure"
	MetricTemperature = "temperature"
	MetricRain        = "rain"
	MetricTsunami     = "tsunami"
	MetricAlertLevel  = "alertLevel"
)

// Reading is the raw input to severity classification: named numeric
// metrics and, for advisory feeds, the advisory's severity word.
type Reading struct {
	Metrics  map[string]float64
	Advisory string
}

func (r Reading) metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func (r Reading) hasAny(names ...string) bool {
	for _, n := range names {
		if _, ok := r.metric(n); ok {
			return true
		}
	}
	return false
}

// SeismicSeverity maps earthquake magnitude: >=7 HIGH, >=5 MEDIUM, else LOW.
func SeismicSeverity(magnitude float64) Severity {
	switch {
	case magnitude >= 7:
		return SeverityHigh
	case magnitude >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// BrightnessSeverity maps satellite hotspot brightness (kelvin).
func BrightnessSeverity(brightness float64) Severity {
	switch {
	case brightness > 400:
		return SeverityHigh
	case brightness > 300:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AdvisorySeverity maps a three-level advisory word. Extreme and Severe
// both collapse to HIGH; unknown words are MEDIUM.
func AdvisorySeverity(word string) Severity {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "extreme", "severe":
		return SeverityHigh
	case "moderate":
		return SeverityMedium
	case "minor":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// StormAdvisorySeverity is the four-level variant used for storm feeds,
// where Extreme maps to CRITICAL.
func StormAdvisorySeverity(word string) Severity {
	if strings.EqualFold(strings.TrimSpace(word), "extreme") {
		return SeverityCritical
	}
	return AdvisorySeverity(word)
}

// FloodSeverity maps water level (m) and rainfall (mm).
func FloodSeverity(waterLevel, rainfall float64) Severity {
	switch {
	case waterLevel > 5 || rainfall > 300:
		return SeverityHigh
	case waterLevel > 3 || rainfall > 200:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// CycloneSeverity maps sustained wind speed and central pressure (hPa).
// Pass math.Inf(1) for an unknown pressure.
func CycloneSeverity(windSpeed, pressure float64) Severity {
	switch {
	case windSpeed > 118 || pressure < 920:
		return SeverityHigh
	case windSpeed > 63 || pressure < 980:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// WeatherSeverity is the composite point-weather rule over temperature (°C),
// wind speed and rain.
func WeatherSeverity(temperature, windSpeed, rain float64) Severity {
	switch {
	case temperature > 45 || temperature < -20 || windSpeed > 25 || rain > 100:
		return SeverityHigh
	case temperature > 40 || temperature < -10 || windSpeed > 15 || rain > 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// TsunamiSeverity maps the seismic feed's tsunami flag.
func TsunamiSeverity(flag float64) Severity {
	if flag > 1 {
		return SeverityHigh
	}
	return SeverityMedium
}

// VolcanicSeverity maps a volcano activity level. Levels of 1 and below are
// not reported as events at all.
func VolcanicSeverity(level float64) Severity {
	if level > 2 {
		return SeverityHigh
	}
	return SeverityMedium
}

// CategorySeverity maps a multi-hazard feed's category title.
func CategorySeverity(title string) Severity {
	switch strings.ToLower(strings.TrimSpace(title)) {
	case "severe storms", "volcanoes", "floods", "wildfires":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

type classifier func(Reading) Severity

// classifiers is the strategy table from canonical type to its classifier.
var classifiers = map[Type]classifier{
	TypeEarthquake:       classifySeismic,
	TypeTsunami:          classifyTsunami,
	TypeFlood:            classifyFlood,
	TypeFlashFlood:       classifyFlood,
	TypeCoastalFlood:     classifyFlood,
	TypeCyclone:          classifyCyclone,
	TypeHurricane:        classifyCyclone,
	TypeTyphoon:          classifyCyclone,
	TypeSevereStorm:      classifyStorm,
	TypeThunderstorm:     classifyStorm,
	TypeWinterStorm:      classifyStorm,
	TypeTornado:          classifyStorm,
	TypeExtremeHeat:      classifyWeather,
	TypeExtremeWeather:   classifyWeather,
	TypeVolcano:          classifyVolcanic,
	TypeVolcanicEruption: classifyVolcanic,
	TypeDrought:          classifyAdvisory,
	TypeWildfire:         classifyWildfire,
	TypeLandslide:        classifyAdvisory,
	TypeAvalanche:        classifyAdvisory,
}

// Classify maps a reading to a severity using the strategy for type t.
// Advisory-style strategies default to MEDIUM when nothing usable is present;
// metric strategies default to LOW.
func Classify(t Type, r Reading) Severity {
	c, ok := classifiers[t]
	if !ok {
		return SeverityLow
	}
	return c(r)
}

func classifySeismic(r Reading) Severity {
	if mag, ok := r.metric(MetricMagnitude); ok {
		return SeismicSeverity(mag)
	}
	return SeverityLow
}

func classifyTsunami(r Reading) Severity {
	if flag, ok := r.metric(MetricTsunami); ok {
		return TsunamiSeverity(flag)
	}
	if r.Advisory != "" {
		return AdvisorySeverity(r.Advisory)
	}
	return SeverityLow
}

func classifyFlood(r Reading) Severity {
	if r.Advisory != "" {
		return AdvisorySeverity(r.Advisory)
	}
	if !r.hasAny(MetricWaterLevel, MetricRainfall) {
		return SeverityLow
	}
	level, _ := r.metric(MetricWaterLevel)
	rain, _ := r.metric(MetricRainfall)
	return FloodSeverity(level, rain)
}

func classifyCyclone(r Reading) Severity {
	if r.Advisory != "" {
		return StormAdvisorySeverity(r.Advisory)
	}
	if !r.hasAny(MetricWindSpeed, MetricPressure) {
		return SeverityLow
	}
	wind, _ := r.metric(MetricWindSpeed)
	pressure, ok := r.metric(MetricPressure)
	if !ok || pressure <= 0 {
		pressure = math.Inf(1)
	}
	return CycloneSeverity(wind, pressure)
}

func classifyStorm(r Reading) Severity {
	if r.Advisory != "" {
		return StormAdvisorySeverity(r.Advisory)
	}
	if !r.hasAny(MetricTemperature, MetricWindSpeed, MetricRain) {
		return SeverityMedium
	}
	return classifyWeather(r)
}

func classifyWeather(r Reading) Severity {
	if r.Advisory != "" {
		return AdvisorySeverity(r.Advisory)
	}
	if !r.hasAny(MetricTemperature, MetricWindSpeed, MetricRain) {
		return SeverityLow
	}
	temp, _ := r.metric(MetricTemperature)
	wind, _ := r.metric(MetricWindSpeed)
	rain, _ := r.metric(MetricRain)
	return WeatherSeverity(temp, wind, rain)
}

func classifyVolcanic(r Reading) Severity {
	if level, ok := r.metric(MetricAlertLevel); ok {
		return VolcanicSeverity(level)
	}
	if r.Advisory != "" {
		return AdvisorySeverity(r.Advisory)
	}
	return SeverityLow
}

func classifyWildfire(r Reading) Severity {
	if b, ok := r.metric(MetricBrightness); ok {
		return BrightnessSeverity(b)
	}
	return SeverityLow
}

func classifyAdvisory(r Reading) Severity {
	return AdvisorySeverity(r.Advisory)
}
