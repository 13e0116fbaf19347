package georef

import (
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/geodrill/utils"
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

func TestOpenRaster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tif")
	nodata := -9999.0
	createTestRaster(t, path, 2, 2, 4326,
		[6]float64{150, 0.25, 0, -30, 0, -0.25}, &nodata,
		[][]float64{
			{1, 2, 3, 4},
			{5, 6, -9999, 8},
		})

	g, err := Open(path)
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, 2, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.Equal(t, Geoloc{150, -30}, g.Origin)
	assert.Equal(t, [2]float64{0.25, -0.25}, g.Resolution)
	assert.Equal(t, Geoloc{150.25, -30.25}, g.LowerRight)
	assert.NotEmpty(t, g.WKT)
	require.Len(t, g.NoDataPerBand, 2)
	assert.True(t, g.NoDataPerBand[0].Defined)
	assert.Equal(t, -9999.0, g.NoDataPerBand[0].Value)

	values, err := g.ReadPixelValues(Pixel{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 6}, values)
	assert.Equal(t, []bool{true, true}, g.MaskValid(values))

	values, err = g.ReadPixelValues(Pixel{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, -9999}, values)
	assert.Equal(t, []bool{true, false}, g.MaskValid(values))
}

func TestOpenMissingFile(t *testing.T) {
	godal.RegisterAll()
	_, err := Open(filepath.Join(t.TempDir(), "no-such.tif"))
	require.Error(t, err)
	assert.True(t, utils.ErrKind(err, utils.KindMissingFile))
}

func TestCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tif")
	createTestRaster(t, path, 1, 1, 4326,
		[6]float64{0, 1, 0, 0, 0, 1}, nil, [][]float64{{1}})

	g, err := Open(path)
	require.NoError(t, err)
	g.Close()
	g.Close()
}

func TestReprojectFromOtherSystem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merc.tif")
	createTestRaster(t, path, 10, 10, 3857,
		[6]float64{-5000, 1000, 0, 5000, 0, -1000}, nil,
		[][]float64{make([]float64, 100)})

	g, err := Open(path)
	require.NoError(t, err)
	defer g.Close()

	src, err := godal.NewSpatialRefFromEPSG(4326)
	require.NoError(t, err)
	defer src.Close()
	srcWKT, err := src.WKT()
	require.NoError(t, err)

	// the null island survives any axis ordering convention
	result, err := g.ReprojectFrom([]Geoloc{{0, 0}}, srcWKT)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.InDelta(t, 0, result[0][0], 1e-6)
	assert.InDelta(t, 0, result[0][1], 1e-6)
}
