// Package domain models normalized disaster events.
//
// # Canonical Event
//
// Every feed is translated into one [Event] shape: a canonical [Type] from a
// closed enumeration, the originating [Source], an ordinal [Severity]
// (LOW < MEDIUM < HIGH < CRITICAL), a [GeoPoint] in [lon, lat] order, the
// occurrence time and a LastUpdated time that only moves forward when a
// duplicate observation is merged.
//
// Type-specific measurements travel in a [Payload] whose category must match
// the type's category:
//
//	flood, flash_flood, coastal_flood     → FloodPayload
//	cyclone, hurricane, typhoon           → CyclonePayload
//	earthquake                            → EarthquakePayload
//	wildfire                              → WildfirePayload
//	volcano, volcanic_eruption            → VolcanoPayload
//	drought                               → DroughtPayload
//	storm family, extreme heat / weather  → WeatherPayload
//	tsunami, landslide, avalanche         → no payload
//
// On the wire a payload is encoded as {"category": ..., "data": {...}}.
//
// # Coordinate Order
//
// Feeds disagree on ordering. USGS and EONET use GeoJSON [lon, lat(, depth)];
// FIRMS and the volcano feed use separate latitude/longitude fields; NWS
// alerts carry a GeoJSON Point or Polygon. Adapters convert to [lon, lat]
// before handing a [Draft] to the [Normalizer].
//
// # Severity Classification
//
// [Classify] dispatches through a table from canonical type to classifier.
// Thresholds:
//
//	Seismic magnitude:   ≥7 HIGH | ≥5 MEDIUM | else LOW
//	Hotspot brightness:  >400 HIGH | >300 MEDIUM | else LOW
//	Flood:               level>5 or rain>300 HIGH | level>3 or rain>200 MEDIUM | else LOW
//	Cyclone:             wind>118 or pressure<920 HIGH | wind>63 or pressure<980 MEDIUM | else LOW
//	Point weather:       temp>45|temp<-20|wind>25|rain>100 HIGH
//	                     temp>40|temp<-10|wind>15|rain>50 MEDIUM | else LOW
//	Advisory word:       Extreme/Severe HIGH | Moderate MEDIUM | Minor LOW | unknown MEDIUM
//	Storm advisory word: Extreme CRITICAL, otherwise as above
//
// A reading with no usable metric classifies as MEDIUM for advisory-style
// types (storm family, drought, landslide, avalanche) and LOW otherwise.
//
// # Activity
//
// An event is active while its LastUpdated lies within the configured active
// window (24h by default). Stores derive IsActive on read.
package domain
