package extractor

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	geo "github.com/nci/geometry"

	"github.com/nci/geodrill/georef"
)

// ReadGeoJSONPoints reads a GeoJSON FeatureCollection of point features and
// returns their coordinates, for use with ExtractTimeSeriesAt. Any
// non-point feature is rejected.
func ReadGeoJSONPoints(filename string) ([]georef.Geoloc, error) {
	rawData, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var featCol struct {
		Features []geo.Feature `json:"features"`
	}
	if err := json.Unmarshal(rawData, &featCol); err != nil {
		return nil, fmt.Errorf("problem unmarshalling geometry from %s: %v", filename, err)
	}

	result := make([]georef.Geoloc, 0, len(featCol.Features))
	for i, feat := range featCol.Features {
		switch geom := feat.Geometry.(type) {
		case *geo.Point:
			geomJSON, err := json.Marshal(geom)
			if err != nil {
				return nil, fmt.Errorf("problem marshaling GeoJSON geometry: %v", err)
			}
			var pt struct {
				Coordinates []float64 `json:"coordinates"`
			}
			if err := json.Unmarshal(geomJSON, &pt); err != nil {
				return nil, fmt.Errorf("problem reading point coordinates: %v", err)
			}
			if len(pt.Coordinates) < 2 {
				return nil, fmt.Errorf("feature %d has %d coordinates, need at least 2", i, len(pt.Coordinates))
			}
			result = append(result, georef.Geoloc{pt.Coordinates[0], pt.Coordinates[1]})
		default:
			return nil, fmt.Errorf("feature %d is not a point geometry", i)
		}
	}
	return result, nil
}
