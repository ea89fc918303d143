package domain

import (
	"context"
	"log/slog"
)

// EnrichAddress fills in the address of an event that has none by reverse
// geocoding its coordinates. Region matching works on address text, so grid
// and hotspot events depend on this. A nil geocoder, a lookup failure or an
// empty result leaves the event unchanged.
func EnrichAddress(ctx context.Context, event Event, geocoder Geocoder, logger *slog.Logger) Event {
	if geocoder == nil || event.Location.Address != "" {
		return event
	}

	result, err := geocoder.ReverseGeocode(ctx, event.Location.Lat, event.Location.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"type", event.Type,
			"lat", event.Location.Lat,
			"lon", event.Location.Lon,
			"error", err,
		)
		return event
	}
	if result.FormattedAddress != "" {
		event.Location.Address = result.FormattedAddress
	}
	return event
}
