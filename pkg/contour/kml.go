package contour

import (
	"fmt"
	"io"
	"os"

	"github.com/ctessum/geom"
	kml "github.com/twpayne/go-kml/v2"
)

// WriteKML emits each flat area as a named KML polygon. An empty slice
// writes a valid document with no placemarks.
func WriteKML(w io.Writer, areas []FlatArea) error {
	children := make([]kml.Element, 0, len(areas))
	for _, a := range areas {
		name := a.Name
		if name == "" {
			name = FlatAreaName
		}
		children = append(children, kml.Placemark(
			kml.Name(name),
			kml.Polygon(kml.OuterBoundaryIs(kml.LinearRing(
				kml.Coordinates(ringCoordinates(a.Ring)...),
			))),
		))
	}
	doc := kml.KML(kml.Document(children...))
	return doc.WriteIndent(w, "", "  ")
}

// SaveKML writes the flat areas to a file.
func SaveKML(path string, areas []FlatArea) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("contour: create KML file: %w", err)
	}
	defer f.Close()
	return WriteKML(f, areas)
}

// WriteAOIKML writes a single review polygon (for example one drawn on
// top of a rendered slope map) as a named KML polygon, closing the
// ring if the input does not.
func WriteAOIKML(w io.Writer, name string, ring []geom.Point) error {
	if len(ring) == 0 {
		return fmt.Errorf("contour: empty ring")
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(append([]geom.Point{}, ring...), ring[0])
	}
	doc := kml.KML(kml.Document(kml.Placemark(
		kml.Name(name),
		kml.Polygon(kml.OuterBoundaryIs(kml.LinearRing(
			kml.Coordinates(ringCoordinates(ring)...),
		))),
	)))
	return doc.WriteIndent(w, "", "  ")
}

func ringCoordinates(ring []geom.Point) []kml.Coordinate {
	coords := make([]kml.Coordinate, len(ring))
	for i, p := range ring {
		coords[i] = kml.Coordinate{Lon: p.X, Lat: p.Y}
	}
	return coords
}
