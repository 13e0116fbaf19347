package georef

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/sirupsen/logrus"

	"github.com/nci/geodrill/utils"
)

// GDAL geotransform component indexes
const (
	gtXUL   = 0
	gtXRes  = 1
	gtXSkew = 2
	gtYUL   = 3
	gtYSkew = 4
	gtYRes  = 5
)

// Geoloc is a coordinate pair in a raster's spatial reference system.
type Geoloc [2]float64

// Pixel is an integer (column, row) index into a raster's grid.
type Pixel [2]int

// NoData is a per-band no-data sentinel. Bands without a configured sentinel
// have Defined set to false and every value is considered an observation.
type NoData struct {
	Value   float64
	Defined bool
}

var registerOnce sync.Once

// GeoReference wraps one raster dataset together with its affine
// geotransform, spatial reference and per-band no-data values. It converts
// between geolocation and pixel space, validates bounds and reads raw pixel
// values.
//
// The skew pair is stored with crossed indexing, (GT[4], GT[2]) paired
// against the X and Y axes respectively, and each skew term multiplies the
// same-axis pixel coordinate. This matches the legacy extraction tooling and
// is not the conventional affine composition; keep it as is.
type GeoReference struct {
	ds  *godal.Dataset
	srs *godal.SpatialRef

	Width  int
	Height int
	// Origin is the geolocation of the upper-left corner.
	Origin Geoloc
	// Resolution holds the per-axis pixel size.
	Resolution [2]float64
	// Skew holds (GT_Y_SKEW, GT_X_SKEW), see type comment.
	Skew [2]float64
	// LowerRight is derived from the last valid pixel, never set directly.
	LowerRight Geoloc
	// WKT is the canonical text form of the spatial reference.
	WKT string
	// NoDataPerBand lists the no-data sentinel of each band in band order.
	NoDataPerBand []NoData
}

// Open opens the named raster and reads its spatial reference, size, affine
// transform and per-band no-data values. The returned GeoReference holds the
// dataset open until Close is called.
func Open(filename string) (*GeoReference, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(filename)
	if err != nil {
		return nil, utils.NewError(utils.KindMissingFile,
			"the file %s does not exist in the file system", filename)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("no geotransform in %s: %v", filename, err)
	}

	st := ds.Structure()
	g := &GeoReference{
		ds:         ds,
		srs:        ds.SpatialRef(),
		Width:      st.SizeX,
		Height:     st.SizeY,
		Origin:     Geoloc{gt[gtXUL], gt[gtYUL]},
		Resolution: [2]float64{gt[gtXRes], gt[gtYRes]},
		Skew:       [2]float64{gt[gtYSkew], gt[gtXSkew]},
		WKT:        ds.Projection(),
	}
	g.LowerRight = g.PixelsToGeolocs([]Pixel{{g.Width - 1, g.Height - 1}})[0]

	for _, b := range ds.Bands() {
		val, ok := b.NoData()
		g.NoDataPerBand = append(g.NoDataPerBand, NoData{Value: val, Defined: ok})
	}

	logrus.Debugf("georef: opened %s (%dx%d, %d bands)", filename, g.Width, g.Height, len(g.NoDataPerBand))
	return g, nil
}

// Close releases the underlying dataset handle. It is safe to call more than
// once.
func (g *GeoReference) Close() {
	if g.srs != nil {
		g.srs.Close()
		g.srs = nil
	}
	if g.ds != nil {
		if err := g.ds.Close(); err != nil {
			logrus.Warnf("georef: error closing dataset: %v", err)
		}
		g.ds = nil
	}
}

// PixelsToGeolocs converts pixel indices to geolocations through the affine
// transform. An empty input yields an empty result.
func (g *GeoReference) PixelsToGeolocs(pixels []Pixel) []Geoloc {
	result := make([]Geoloc, len(pixels))
	for i, p := range pixels {
		px, py := float64(p[0]), float64(p[1])
		result[i] = Geoloc{
			g.Origin[0] + g.Resolution[0]*px + g.Skew[0]*px,
			g.Origin[1] + g.Resolution[1]*py + g.Skew[1]*py,
		}
	}
	return result
}

// GeolocsToPixels converts geolocations to pixel indices, the inverse of
// PixelsToGeolocs. Each axis offset is floor-divided by the resolution term
// and by the skew term; a non-finite quotient from a zero divisor counts as
// zero. Floor division rounds toward negative infinity.
func (g *GeoReference) GeolocsToPixels(geolocs []Geoloc) []Pixel {
	result := make([]Pixel, len(geolocs))
	for i, gl := range geolocs {
		var p Pixel
		for axis := 0; axis < 2; axis++ {
			d := gl[axis] - g.Origin[axis]
			byRes := math.Floor(d / g.Resolution[axis])
			bySkew := math.Floor(d / g.Skew[axis])
			if math.IsInf(byRes, 0) || math.IsNaN(byRes) {
				byRes = 0
			}
			if math.IsInf(bySkew, 0) || math.IsNaN(bySkew) {
				bySkew = 0
			}
			p[axis] = int(byRes + bySkew)
		}
		result[i] = p
	}
	return result
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}

// HasOutOfBoundsGeolocs reports whether any point lies outside the raster's
// bounding box. Note the polarity: true means at least one point is invalid.
// The resolution sign normalizes each axis so that the test works for
// north-up rasters with negative Y resolution.
func (g *GeoReference) HasOutOfBoundsGeolocs(geolocs []Geoloc) bool {
	for _, gl := range geolocs {
		for axis := 0; axis < 2; axis++ {
			s := signOf(g.Resolution[axis])
			if gl[axis]*s < g.Origin[axis]*s || gl[axis]*s > g.LowerRight[axis]*s {
				return true
			}
		}
	}
	return false
}

// HasOutOfBoundsPixels reports whether any pixel index lies outside the
// raster extent. True means at least one pixel is invalid.
func (g *GeoReference) HasOutOfBoundsPixels(pixels []Pixel) bool {
	size := [2]int{g.Width, g.Height}
	for _, p := range pixels {
		for axis := 0; axis < 2; axis++ {
			if p[axis] < 0 || p[axis] > size[axis] {
				return true
			}
		}
	}
	return false
}

func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// RandomGeolocs samples n geolocations uniformly within the raster's
// bounding box, optionally narrowed by bboxUL/bboxLR. A zero seed gives
// non-deterministic output; any other seed is reproducible.
func (g *GeoReference) RandomGeolocs(n int, bboxUL, bboxLR *Geoloc, seed int64) ([]Geoloc, error) {
	ul, lr := g.Origin, g.LowerRight
	for axis := 0; axis < 2; axis++ {
		s := signOf(g.Resolution[axis])
		if ul[axis]*s > lr[axis]*s {
			return nil, utils.NewError(utils.KindInvalidBoundBox, "invalid bound box")
		}
	}
	if bboxUL != nil {
		for axis := 0; axis < 2; axis++ {
			s := signOf(g.Resolution[axis])
			if bboxUL[axis]*s < ul[axis]*s {
				return nil, utils.NewError(utils.KindOutOfBounds, "coordinate/pixel index out of bounds")
			}
		}
		ul = *bboxUL
	}
	if bboxLR != nil {
		for axis := 0; axis < 2; axis++ {
			s := signOf(g.Resolution[axis])
			if bboxLR[axis]*s > lr[axis]*s {
				return nil, utils.NewError(utils.KindOutOfBounds, "coordinate/pixel index out of bounds")
			}
		}
		lr = *bboxLR
	}

	rng := newRNG(seed)
	result := make([]Geoloc, n)
	for i := range result {
		for axis := 0; axis < 2; axis++ {
			result[i][axis] = ul[axis] + rng.Float64()*(lr[axis]-ul[axis])
		}
	}
	return result, nil
}

// RandomPixels samples n pixel indices uniformly within the raster extent,
// optionally narrowed by bboxUL/bboxLR. A zero seed gives non-deterministic
// output; any other seed is reproducible.
func (g *GeoReference) RandomPixels(n int, bboxUL, bboxLR *Pixel, seed int64) ([]Pixel, error) {
	ul := Pixel{0, 0}
	lr := Pixel{g.Width - 1, g.Height - 1}
	if ul[0] > lr[0] || ul[1] > lr[1] {
		return nil, utils.NewError(utils.KindInvalidBoundBox, "invalid bound box")
	}
	if bboxUL != nil {
		if bboxUL[0] < ul[0] || bboxUL[1] < ul[1] {
			return nil, utils.NewError(utils.KindOutOfBounds, "coordinate/pixel index out of bounds")
		}
		ul = *bboxUL
	}
	if bboxLR != nil {
		if bboxLR[0] > lr[0] || bboxLR[1] > lr[1] {
			return nil, utils.NewError(utils.KindOutOfBounds, "coordinate/pixel index out of bounds")
		}
		lr = *bboxLR
	}

	rng := newRNG(seed)
	result := make([]Pixel, n)
	for i := range result {
		for axis := 0; axis < 2; axis++ {
			result[i][axis] = ul[axis] + int(rng.Float64()*float64(lr[axis]-ul[axis]))
		}
	}
	return result, nil
}

// ReadPixelValues reads all band values at one integer pixel coordinate.
func (g *GeoReference) ReadPixelValues(p Pixel) ([]float64, error) {
	bands := g.ds.Bands()
	values := make([]float64, len(bands))
	buf := make([]float64, 1)
	for i, b := range bands {
		if err := b.Read(p[0], p[1], buf, 1, 1); err != nil {
			return nil, fmt.Errorf("error reading pixel %v band %d: %v", p, i+1, err)
		}
		values[i] = buf[0]
	}
	return values, nil
}

// MaskValid compares a per-band value vector against the per-band no-data
// sentinels. True marks an actual observation. Bands without a sentinel are
// always valid.
func (g *GeoReference) MaskValid(values []float64) []bool {
	mask := make([]bool, len(values))
	for i := range values {
		if i < len(g.NoDataPerBand) && g.NoDataPerBand[i].Defined {
			mask[i] = values[i] != g.NoDataPerBand[i].Value
		} else {
			mask[i] = true
		}
	}
	return mask
}

// ReprojectFrom reprojects geolocations given in the source reference system
// into this raster's system. When both systems have the same canonical text
// the input is returned untouched. Only the first two coordinates of each
// transformed point are kept.
func (g *GeoReference) ReprojectFrom(geolocs []Geoloc, srcWKT string) ([]Geoloc, error) {
	if srcWKT == g.WKT {
		return geolocs, nil
	}

	src, err := godal.NewSpatialRefFromWKT(srcWKT)
	if err != nil {
		return nil, fmt.Errorf("error parsing source reference system: %v", err)
	}
	defer src.Close()

	trn, err := godal.NewTransform(src, g.srs)
	if err != nil {
		return nil, fmt.Errorf("error creating coordinate transform: %v", err)
	}
	defer trn.Close()

	xs := make([]float64, len(geolocs))
	ys := make([]float64, len(geolocs))
	for i, gl := range geolocs {
		xs[i] = gl[0]
		ys[i] = gl[1]
	}
	if err := trn.TransformEx(xs, ys, make([]float64, len(geolocs)), nil); err != nil {
		return nil, fmt.Errorf("error transforming points: %v", err)
	}

	result := make([]Geoloc, len(geolocs))
	for i := range result {
		result[i] = Geoloc{xs[i], ys[i]}
	}
	return result, nil
}
