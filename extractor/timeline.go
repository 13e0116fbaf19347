package extractor

import (
	"fmt"
	"time"

	"github.com/nci/geodrill/georef"
	"github.com/nci/geodrill/tagcsv"
	"github.com/nci/geodrill/utils"
)

// Timeline tag names
const (
	TagDateField  = "date_field"
	TagDateFormat = "date_format"
	TagDOYFile    = "doy_tif_filepath"
	TagDayFactor  = "doy_factor"
)

// Timeline defaults used when the table does not carry the tag
const (
	DefaultDateFormat = "%Y-%m-%d"
	DefaultDOYFile    = "doy.tif"
	DefaultDayFactor  = 1.0
)

// Timeline binds an acquisition-date table to a day-of-year raster. Each
// table row holds the nominal date of one acquisition; the raster holds, per
// pixel and per acquisition, the day offset from the first of that year at
// which the pixel was actually observed.
type Timeline struct {
	*tagcsv.Table
	DOY *georef.GeoReference
}

func timelineTagValue(t *tagcsv.Table, name string, value string) (interface{}, error) {
	switch name {
	case TagDateField:
		idx, err := t.ResolveFieldRef(value)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case TagDayFactor:
		return t.ParseFloat(value)
	}
	return tagcsv.BaseTagValue(t, name, value)
}

func timelineRowData(t *tagcsv.Table, fields []string) ([]interface{}, error) {
	row, err := tagcsv.BaseRowData(t, fields)
	if err != nil {
		return nil, err
	}

	v, err := t.Tag(TagDateField)
	if err != nil {
		return nil, err
	}
	field, _ := v.(int)
	if field < 0 || field >= len(row) {
		return nil, fmt.Errorf("date field %d out of range for row with %d fields", field, len(row))
	}
	format, _ := t.TagOr(TagDateFormat, DefaultDateFormat).(string)
	cell, _ := row[field].(string)
	date, err := utils.ParseDate(cell, format)
	if err != nil {
		return nil, fmt.Errorf("error parsing date '%v': %v", row[field], err)
	}
	row[field] = date
	return row, nil
}

// OpenTimeline opens the named timeline table and its day-of-year raster.
func OpenTimeline(filename string) (*Timeline, error) {
	tbl, err := tagcsv.Open(filename, tagcsv.Options{},
		tagcsv.Hooks{Tag: timelineTagValue, Row: timelineRowData})
	if err != nil {
		return nil, err
	}

	tbl.Tags[TagDateFormat] = tbl.TagOr(TagDateFormat, DefaultDateFormat)
	tbl.Tags[TagDOYFile] = tbl.TagOr(TagDOYFile, DefaultDOYFile)
	tbl.Tags[TagDayFactor] = tbl.TagOr(TagDayFactor, DefaultDayFactor)

	doyPath, _ := tbl.Tags[TagDOYFile].(string)
	doy, err := georef.Open(doyPath)
	if err != nil {
		tbl.Close()
		return nil, err
	}

	return &Timeline{Table: tbl, DOY: doy}, nil
}

// DateField returns the resolved index of the date column.
func (tl *Timeline) DateField() (int, error) {
	v, err := tl.Tag(TagDateField)
	if err != nil {
		return -1, err
	}
	idx, ok := v.(int)
	if !ok {
		return -1, fmt.Errorf("tag '%s' does not hold a field index", TagDateField)
	}
	return idx, nil
}

// DayFactor returns the scale applied to raw day-of-year raster values.
func (tl *Timeline) DayFactor() float64 {
	v, _ := tl.TagOr(TagDayFactor, DefaultDayFactor).(float64)
	return v
}

// ResolvePixelDates resolves the true acquisition date of every table row at
// one pixel. Rows whose day-of-year value is a real observation resolve to
// the first of the table date's year plus the scaled day offset; no-data
// rows fall back to the table's own date. The returned mask marks the rows
// backed by a real observation.
func (tl *Timeline) ResolvePixelDates(pixel georef.Pixel) ([]time.Time, []bool, error) {
	doys, err := tl.DOY.ReadPixelValues(pixel)
	if err != nil {
		return nil, nil, err
	}
	valid := tl.DOY.MaskValid(doys)

	field, err := tl.DateField()
	if err != nil {
		return nil, nil, err
	}
	if field < 0 || field >= len(tl.Columns) {
		return nil, nil, fmt.Errorf("date field index %d out of range", field)
	}
	col := tl.Column(field)
	if len(doys) != len(col) {
		return nil, nil, utils.NewError(utils.KindWrongTimeLineLength,
			"time line length (%d) is different of stack time series length (%d)", len(col), len(doys))
	}

	factor := tl.DayFactor()
	dates := make([]time.Time, len(col))
	for i, v := range col {
		d, ok := v.(time.Time)
		if !ok {
			return nil, nil, fmt.Errorf("date column row %d holds '%v', not a date", i, v)
		}
		if valid[i] {
			jan1 := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, d.Location())
			dates[i] = jan1.Add(time.Duration(doys[i] * factor * float64(24*time.Hour)))
		} else {
			dates[i] = d
		}
	}
	return dates, valid, nil
}

// MaskTimespan marks the dates inside the inclusive [from, to] interval. A
// nil bound leaves that side unconstrained.
func MaskTimespan(dates []time.Time, from *time.Time, to *time.Time) []bool {
	mask := make([]bool, len(dates))
	for i, d := range dates {
		mask[i] = true
		if from != nil && d.Before(*from) {
			mask[i] = false
		}
		if to != nil && d.After(*to) {
			mask[i] = false
		}
	}
	return mask
}

// Close releases the day-of-year raster and the table buffer.
func (tl *Timeline) Close() {
	if tl.DOY != nil {
		tl.DOY.Close()
	}
	tl.Table.Close()
}
