package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type is the canonical disaster category used system-wide.
type Type string

const (
	TypeEarthquake       Type = "earthquake"
	TypeTsunami          Type = "tsunami"
	TypeFlood            Type = "flood"
	TypeFlashFlood       Type = "flash_flood"
	TypeCoastalFlood     Type = "coastal_flood"
	TypeCyclone          Type = "cyclone"
	TypeHurricane        Type = "hurricane"
	TypeTyphoon          Type = "typhoon"
	TypeSevereStorm      Type = "severe_storm"
	TypeThunderstorm     Type = "thunderstorm"
	TypeWinterStorm      Type = "winter_storm"
	TypeTornado          Type = "tornado"
	TypeVolcano          Type = "volcano"
	TypeVolcanicEruption Type = "volcanic_eruption"
	TypeDrought          Type = "drought"
	TypeExtremeHeat      Type = "extreme_heat"
	TypeExtremeWeather   Type = "extreme_weather"
	TypeWildfire         Type = "wildfire"
	TypeLandslide        Type = "landslide"
	TypeAvalanche        Type = "avalanche"
)

// AllTypes lists every canonical type in a stable order.
var AllTypes = []Type{
	TypeEarthquake, TypeTsunami,
	TypeFlood, TypeFlashFlood, TypeCoastalFlood,
	TypeCyclone, TypeHurricane, TypeTyphoon,
	TypeSevereStorm, TypeThunderstorm, TypeWinterStorm, TypeTornado,
	TypeVolcano, TypeVolcanicEruption,
	TypeDrought, TypeExtremeHeat, TypeExtremeWeather,
	TypeWildfire, TypeLandslide, TypeAvalanche,
}

// Valid reports whether t is a member of the closed enumeration.
func (t Type) Valid() bool {
	_, ok := payloadCategories[t]
	return ok
}

// ParseType accepts a canonical type name in any letter case.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Source identifies the feed family an event originated from.
type Source string

const (
	SourceSeismic          Source = "seismic"
	SourceMeteorological   Source = "meteorological"
	SourceSatelliteHotspot Source = "satellite_hotspot"
	SourceSpaceAgency      Source = "space_agency"
	SourceStormAdvisory    Source = "storm_advisory"
	SourceVolcanic         Source = "volcanic"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceSeismic, SourceMeteorological, SourceSatelliteHotspot,
		SourceSpaceAgency, SourceStormAdvisory, SourceVolcanic:
		return true
	}
	return false
}

// Severity is an ordinal ranking. The zero value is invalid so that an
// unset severity is caught by Validate.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Valid reports whether s is one of the four ordinals.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// ParseSeverity accepts LOW, MEDIUM, HIGH or CRITICAL in any letter case.
func ParseSeverity(s string) (Severity, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for sev, name := range severityNames {
		if name == want {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal severity: invalid value %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
