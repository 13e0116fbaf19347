package extractor

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nci/geodrill/georef"
	"github.com/nci/geodrill/tagcsv"
	"github.com/nci/geodrill/utils"
)

// Samples table tag names
const (
	TagXField        = "x_field"
	TagYField        = "y_field"
	TagProjWKT       = "projection_wkt"
	TagFromDateField = "from_date_field"
	TagToDateField   = "to_date_field"
	TagClassField    = "class_field"
	TagTimelineFile  = "timeline_filepath"
	TagBandsPaths    = "bands_filepaths"
	TagBandsFactors  = "bands_factors"
)

// DefaultTimelineFile is used when the samples table has no
// timeline_filepath tag.
const DefaultTimelineFile = "timeline.csv"

// BandSeries is the masked time series of one band at one sample: the
// scaled observed values and their resolved acquisition dates, aligned
// index by index.
type BandSeries struct {
	Values []float64
	Dates  []time.Time
}

// Samples holds ground-truth sample points with class labels and valid-date
// intervals, a Timeline and the band rasters to extract from.
type Samples struct {
	*tagcsv.Table
	Timeline    *Timeline
	Bands       []*georef.GeoReference
	BandFactors []float64
}

func samplesTagValue(t *tagcsv.Table, name string, value string) (interface{}, error) {
	switch name {
	case TagXField, TagYField, TagClassField, TagFromDateField, TagToDateField:
		idx, err := t.ResolveFieldRef(value)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case TagBandsPaths:
		var paths []string
		for _, p := range strings.Split(strings.TrimSpace(value), ",") {
			paths = append(paths, strings.TrimSpace(p))
		}
		return paths, nil
	case TagBandsFactors:
		var factors []float64
		for _, p := range strings.Split(strings.TrimSpace(value), ",") {
			f, err := t.ParseFloat(p)
			if err != nil {
				return nil, fmt.Errorf("error parsing band factor '%s': %v", p, err)
			}
			factors = append(factors, f)
		}
		return factors, nil
	}
	return tagcsv.BaseTagValue(t, name, value)
}

func samplesRowData(t *tagcsv.Table, fields []string) ([]interface{}, error) {
	row, err := tagcsv.BaseRowData(t, fields)
	if err != nil {
		return nil, err
	}

	for _, name := range []string{TagXField, TagYField} {
		v, err := t.Tag(name)
		if err != nil {
			return nil, err
		}
		field, _ := v.(int)
		if field < 0 || field >= len(row) {
			return nil, fmt.Errorf("%s %d out of range for row with %d fields", name, field, len(row))
		}
		cell, _ := row[field].(string)
		val, err := t.ParseFloat(cell)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s '%v': %v", name, row[field], err)
		}
		row[field] = val
	}

	format, _ := t.TagOr(TagDateFormat, DefaultDateFormat).(string)
	for _, name := range []string{TagFromDateField, TagToDateField} {
		field, ok := t.Tags[name].(int)
		if !ok {
			continue
		}
		if field < 0 || field >= len(row) {
			return nil, fmt.Errorf("%s %d out of range for row with %d fields", name, field, len(row))
		}
		cell, _ := row[field].(string)
		date, err := utils.ParseDate(cell, format)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s '%v': %v", name, row[field], err)
		}
		row[field] = date
	}
	return row, nil
}

// OpenSamples opens the named samples table, its timeline and its band
// rasters. The band path and band factor lists must have the same length.
func OpenSamples(filename string) (*Samples, error) {
	tbl, err := tagcsv.Open(filename, tagcsv.Options{},
		tagcsv.Hooks{Tag: samplesTagValue, Row: samplesRowData})
	if err != nil {
		return nil, err
	}

	tbl.Tags[TagDateFormat] = tbl.TagOr(TagDateFormat, DefaultDateFormat)
	tbl.Tags[TagTimelineFile] = tbl.TagOr(TagTimelineFile, DefaultTimelineFile)

	pathsVal, err := tbl.Tag(TagBandsPaths)
	if err != nil {
		tbl.Close()
		return nil, err
	}
	factorsVal, err := tbl.Tag(TagBandsFactors)
	if err != nil {
		tbl.Close()
		return nil, err
	}
	paths, _ := pathsVal.([]string)
	factors, _ := factorsVal.([]float64)
	if len(paths) != len(factors) {
		tbl.Close()
		return nil, utils.NewError(utils.KindBandsTagsError,
			"bands_paths and bands_factors tags must have the same length")
	}

	timelinePath, _ := tbl.Tags[TagTimelineFile].(string)
	timeline, err := OpenTimeline(timelinePath)
	if err != nil {
		tbl.Close()
		return nil, err
	}

	s := &Samples{Table: tbl, Timeline: timeline, BandFactors: factors}
	for _, path := range paths {
		band, err := georef.Open(path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Bands = append(s.Bands, band)
	}
	return s, nil
}

// FetchData fetches the timeline rows and then the sample rows.
func (s *Samples) FetchData() error {
	if err := s.Timeline.FetchData(); err != nil {
		return err
	}
	return s.Table.FetchData()
}

func (s *Samples) allRows() []int {
	rows := make([]int, s.NumRows())
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// ReadGeolocs gathers the sample (x, y) coordinates, optionally restricted
// to a subset of rows. A nil subset means every row.
func (s *Samples) ReadGeolocs(rows []int) ([]georef.Geoloc, error) {
	xv, err := s.Tag(TagXField)
	if err != nil {
		return nil, err
	}
	yv, err := s.Tag(TagYField)
	if err != nil {
		return nil, err
	}
	xf, _ := xv.(int)
	yf, _ := yv.(int)
	if xf < 0 || xf >= len(s.Columns) || yf < 0 || yf >= len(s.Columns) {
		return nil, fmt.Errorf("coordinate field index out of range")
	}
	xcol := s.Column(xf)
	ycol := s.Column(yf)

	if rows == nil {
		rows = s.allRows()
	}
	result := make([]georef.Geoloc, len(rows))
	for i, r := range rows {
		if r < 0 || r >= len(xcol) {
			return nil, fmt.Errorf("sample row index %d out of range", r)
		}
		x, xok := xcol[r].(float64)
		y, yok := ycol[r].(float64)
		if !xok || !yok {
			return nil, fmt.Errorf("sample row %d has non numeric coordinates", r)
		}
		result[i] = georef.Geoloc{x, y}
	}
	return result, nil
}

// ReprojectTo reprojects the sample geolocations from the table's source
// reference system into the target raster's system.
func (s *Samples) ReprojectTo(target *georef.GeoReference, rows []int) ([]georef.Geoloc, error) {
	geolocs, err := s.ReadGeolocs(rows)
	if err != nil {
		return nil, err
	}
	wkt, err := s.Tag(TagProjWKT)
	if err != nil {
		return nil, err
	}
	srcWKT, _ := wkt.(string)
	return target.ReprojectFrom(geolocs, srcWKT)
}

// seriesAtPixel extracts the masked, scaled series of every band at one
// pixel. A non-nil bound further restricts the series to the inclusive
// interval on that side.
func (s *Samples) seriesAtPixel(pixel georef.Pixel, from *time.Time, to *time.Time) ([]BandSeries, error) {
	dates, dateValid, err := s.Timeline.ResolvePixelDates(pixel)
	if err != nil {
		return nil, err
	}

	series := make([]BandSeries, 0, len(s.Bands))
	for j, band := range s.Bands {
		values, err := band.ReadPixelValues(pixel)
		if err != nil {
			return nil, err
		}
		if len(values) != len(dates) {
			return nil, utils.NewError(utils.KindDiffStacksLength,
				"the tif stacks' length are different (%d values, %d dates)", len(values), len(dates))
		}
		bandValid := band.MaskValid(values)

		var bs BandSeries
		for k := range values {
			ok := dateValid[k] && bandValid[k]
			if ok && from != nil && dates[k].Before(*from) {
				ok = false
			}
			if ok && to != nil && dates[k].After(*to) {
				ok = false
			}
			if ok {
				bs.Values = append(bs.Values, values[k]*s.BandFactors[j])
				bs.Dates = append(bs.Dates, dates[k])
			}
		}
		series = append(series, bs)
	}
	return series, nil
}

func (s *Samples) rowBound(name string, row int) *time.Time {
	field, ok := s.Tags[name].(int)
	if !ok {
		return nil
	}
	col := s.Column(field)
	if row < 0 || row >= len(col) {
		return nil
	}
	if d, ok := col[row].(time.Time); ok {
		return &d
	}
	return nil
}

// ExtractTimeSeries builds the per-sample, per-band masked time series. A
// nil row subset means every sample. With filterInterval set, each sample's
// series is additionally restricted to its own valid-date interval,
// considering only the bounds its row defines. Result ordering follows the
// input row order; band ordering follows the configured band list.
func (s *Samples) ExtractTimeSeries(rows []int, filterInterval bool) ([][]BandSeries, error) {
	if rows == nil {
		rows = s.allRows()
	}

	geolocs, err := s.ReprojectTo(s.Timeline.DOY, rows)
	if err != nil {
		return nil, err
	}
	pixels := s.Timeline.DOY.GeolocsToPixels(geolocs)

	result := make([][]BandSeries, 0, len(pixels))
	for i, pixel := range pixels {
		var from, to *time.Time
		if filterInterval {
			from = s.rowBound(TagFromDateField, rows[i])
			to = s.rowBound(TagToDateField, rows[i])
		}
		series, err := s.seriesAtPixel(pixel, from, to)
		if err != nil {
			return nil, err
		}
		result = append(result, series)
	}
	logrus.Debugf("extractor: extracted %d samples x %d bands", len(result), len(s.Bands))
	return result, nil
}

// ExtractTimeSeriesAt extracts unfiltered series at arbitrary geolocations
// given in the srcWKT reference system, bypassing the sample table rows.
func (s *Samples) ExtractTimeSeriesAt(geolocs []georef.Geoloc, srcWKT string) ([][]BandSeries, error) {
	projected, err := s.Timeline.DOY.ReprojectFrom(geolocs, srcWKT)
	if err != nil {
		return nil, err
	}
	pixels := s.Timeline.DOY.GeolocsToPixels(projected)

	result := make([][]BandSeries, 0, len(pixels))
	for _, pixel := range pixels {
		series, err := s.seriesAtPixel(pixel, nil, nil)
		if err != nil {
			return nil, err
		}
		result = append(result, series)
	}
	return result, nil
}

// Close releases the band rasters, the timeline and the table buffer.
func (s *Samples) Close() {
	for _, band := range s.Bands {
		band.Close()
	}
	s.Bands = nil
	if s.Timeline != nil {
		s.Timeline.Close()
	}
	s.Table.Close()
}
