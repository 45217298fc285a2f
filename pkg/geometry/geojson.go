package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/ctessum/geom"
)

// rawGeoJSON is the subset of GeoJSON this pipeline accepts as AOI
// input: geometries, features and collections of either. Only
// polygonal coordinate payloads are decoded; points, linestrings and
// unknown types are rejected as invalid AOI geometry.
type rawGeoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometries  []rawGeoJSON    `json:"geometries"`
	Geometry    *rawGeoJSON     `json:"geometry"`
	Features    []rawGeoJSON    `json:"features"`
}

// ParseGeoJSON decodes an AOI supplied as GeoJSON. Feature and
// FeatureCollection wrappers are unwrapped; multiple polygonal members
// are returned as a GeometryCollection for Normalize to merge.
func ParseGeoJSON(data []byte) (geom.Geom, error) {
	var raw rawGeoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("geometry: parse GeoJSON: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw rawGeoJSON) (geom.Geom, error) {
	switch raw.Type {
	case "Polygon":
		var coords [][][]float64
		if err := json.Unmarshal(raw.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("geometry: polygon coordinates: %w", err)
		}
		return polygonFromCoords(coords), nil
	case "MultiPolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(raw.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("geometry: multipolygon coordinates: %w", err)
		}
		mp := make(geom.MultiPolygon, 0, len(coords))
		for _, pc := range coords {
			mp = append(mp, polygonFromCoords(pc))
		}
		return mp, nil
	case "GeometryCollection":
		gc := make(geom.GeometryCollection, 0, len(raw.Geometries))
		for _, member := range raw.Geometries {
			g, err := fromRaw(member)
			if err != nil {
				return nil, err
			}
			gc = append(gc, g)
		}
		return gc, nil
	case "Feature":
		if raw.Geometry == nil {
			return nil, fmt.Errorf("geometry: feature without geometry")
		}
		return fromRaw(*raw.Geometry)
	case "FeatureCollection":
		gc := make(geom.GeometryCollection, 0, len(raw.Features))
		for _, f := range raw.Features {
			g, err := fromRaw(f)
			if err != nil {
				return nil, err
			}
			gc = append(gc, g)
		}
		return gc, nil
	default:
		return nil, fmt.Errorf("%w: unsupported GeoJSON type %q", ErrInvalidGeometry, raw.Type)
	}
}

func polygonFromCoords(coords [][][]float64) geom.Polygon {
	p := make(geom.Polygon, 0, len(coords))
	for _, ring := range coords {
		r := make([]geom.Point, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				continue
			}
			r = append(r, geom.Point{X: pos[0], Y: pos[1]})
		}
		p = append(p, r)
	}
	return p
}
