package binquery

import (
	"encoding/json"
	"math"
)

// Residual evaluation of GEO_WITHIN. The region operand is a GeoJSON
// string supporting Polygon and AeroCircle; the bin value is a GeoJSON
// Point, either as a raw JSON string or an already-decoded map.

const earthRadiusMeters = 6371000.0

type geoShape struct {
	Type        string            `json:"type"`
	Coordinates []json.RawMessage `json:"coordinates"`
}

// geoWithin reports whether the point bin value lies inside the region
func geoWithin(val interface{}, region string) bool {
	lon, lat, ok := geoPoint(val)
	if !ok {
		return false
	}

	var shape geoShape
	if err := json.Unmarshal([]byte(region), &shape); err != nil {
		return false
	}

	switch shape.Type {
	case "AeroCircle":
		// coordinates: [[lon, lat], radiusMeters]
		if len(shape.Coordinates) != 2 {
			return false
		}
		var center [2]float64
		var radius float64
		if err := json.Unmarshal(shape.Coordinates[0], &center); err != nil {
			return false
		}
		if err := json.Unmarshal(shape.Coordinates[1], &radius); err != nil {
			return false
		}
		return haversine(lat, lon, center[1], center[0]) <= radius

	case "Polygon":
		// coordinates: [outerRing, holes...]; only the outer ring is
		// consulted here
		if len(shape.Coordinates) == 0 {
			return false
		}
		var ring [][2]float64
		if err := json.Unmarshal(shape.Coordinates[0], &ring); err != nil {
			return false
		}
		return pointInRing(lon, lat, ring)
	}
	return false
}

// geoPoint extracts lon/lat from a GeoJSON Point value
func geoPoint(val interface{}) (lon, lat float64, ok bool) {
	var decoded map[string]interface{}
	switch t := val.(type) {
	case string:
		if err := json.Unmarshal([]byte(t), &decoded); err != nil {
			return 0, 0, false
		}
	case map[string]interface{}:
		decoded = t
	default:
		return 0, 0, false
	}

	if typ, _ := decoded["type"].(string); typ != "Point" {
		return 0, 0, false
	}
	coords, okc := decoded["coordinates"].([]interface{})
	if !okc || len(coords) != 2 {
		return 0, 0, false
	}
	lonF, okLon := asFloat(coords[0])
	latF, okLat := asFloat(coords[1])
	if !okLon || !okLat {
		return 0, 0, false
	}
	return lonF, latF, true
}

// haversine returns the great-circle distance between two points in meters
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// pointInRing is a standard ray-casting point-in-polygon test
func pointInRing(x, y float64, ring [][2]float64) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
