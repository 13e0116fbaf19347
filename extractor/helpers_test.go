package extractor

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/require"

	"github.com/nci/geodrill/georef"
)

// createTestRaster writes a small GeoTIFF with one value slice per band.
func createTestRaster(t *testing.T, path string, width, height, epsg int, gt [6]float64, nodata *float64, bands [][]float64) {
	t.Helper()
	godal.RegisterAll()

	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.Float64, width, height)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform(gt))

	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	require.NoError(t, err)
	defer sr.Close()
	require.NoError(t, ds.SetSpatialRef(sr))

	for i, b := range ds.Bands() {
		if nodata != nil {
			require.NoError(t, b.SetNoData(*nodata))
		}
		require.NoError(t, b.Write(0, 0, bands[i], width, height))
	}
	require.NoError(t, ds.Close())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

// rasterWKT returns the canonical reference system text of a raster file.
func rasterWKT(t *testing.T, path string) string {
	t.Helper()
	g, err := georef.Open(path)
	require.NoError(t, err)
	defer g.Close()
	return g.WKT
}

// identityGT maps pixel indices directly onto geolocations.
var identityGT = [6]float64{0, 1, 0, 0, 0, 1}

// createDOYFixture writes a 1x1 day-of-year raster plus its timeline table
// and returns the timeline path. Table rows line up with the raster bands.
func createDOYFixture(t *testing.T, dir string, doys []float64, dates []string) string {
	t.Helper()
	nodata := -1.0
	bands := make([][]float64, len(doys))
	for i, v := range doys {
		bands[i] = []float64{v}
	}
	doyPath := filepath.Join(dir, "doy.tif")
	createTestRaster(t, doyPath, 1, 1, 4326, identityGT, &nodata, bands)

	content := "#has_header=true\n" +
		"#date_field=date\n" +
		"#date_format=%Y-%m-%d\n" +
		"#doy_tif_filepath=" + doyPath + "\n" +
		"#doy_factor=1.0\n" +
		"date\n"
	for _, d := range dates {
		content += d + "\n"
	}
	return writeFile(t, dir, "timeline.csv", content)
}
