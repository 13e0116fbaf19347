package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nci/geodrill/georef"
	"github.com/nci/geodrill/utils"
)

func TestOpenTimeline(t *testing.T) {
	dir := t.TempDir()
	path := createDOYFixture(t, dir,
		[]float64{45, 20, -1},
		[]string{"2020-01-01", "2020-06-15", "2020-03-05"})

	tl, err := OpenTimeline(path)
	require.NoError(t, err)
	defer tl.Close()

	field, err := tl.DateField()
	require.NoError(t, err)
	assert.Equal(t, 0, field)
	assert.Equal(t, 1.0, tl.DayFactor())
	assert.Equal(t, 1, tl.DOY.Width)

	require.NoError(t, tl.FetchData())
	assert.Equal(t, 3, tl.NumRows())
	d, ok := tl.Column(0)[0].(time.Time)
	require.True(t, ok)
	assert.Equal(t, "2020-01-01", d.Format("2006-01-02"))
}

func TestResolvePixelDates(t *testing.T) {
	dir := t.TempDir()
	path := createDOYFixture(t, dir,
		[]float64{45, 20, -1},
		[]string{"2020-01-01", "2020-06-15", "2020-03-05"})

	tl, err := OpenTimeline(path)
	require.NoError(t, err)
	defer tl.Close()
	require.NoError(t, tl.FetchData())

	dates, valid, err := tl.ResolvePixelDates(georef.Pixel{0, 0})
	require.NoError(t, err)
	require.Len(t, dates, 3)

	// first of the table date's year plus the day offset
	assert.Equal(t, "2020-02-15", dates[0].Format("2006-01-02"))
	assert.Equal(t, "2020-01-21", dates[1].Format("2006-01-02"))
	// no-data day offsets fall back to the table's own date
	assert.Equal(t, "2020-03-05", dates[2].Format("2006-01-02"))
	assert.Equal(t, []bool{true, true, false}, valid)
}

func TestResolvePixelDatesDayFactor(t *testing.T) {
	dir := t.TempDir()
	timelinePath := createDOYFixture(t, dir, []float64{10}, []string{"2021-01-01"})

	tl, err := OpenTimeline(timelinePath)
	require.NoError(t, err)
	defer tl.Close()
	tl.Tags[TagDayFactor] = 0.5
	require.NoError(t, tl.FetchData())

	dates, _, err := tl.ResolvePixelDates(georef.Pixel{0, 0})
	require.NoError(t, err)
	assert.Equal(t, "2021-01-06", dates[0].Format("2006-01-02"))
}

func TestResolvePixelDatesLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	path := createDOYFixture(t, dir,
		[]float64{45, 20},
		[]string{"2020-01-01", "2020-06-15", "2020-03-05"})

	tl, err := OpenTimeline(path)
	require.NoError(t, err)
	defer tl.Close()
	require.NoError(t, tl.FetchData())

	_, _, err = tl.ResolvePixelDates(georef.Pixel{0, 0})
	require.Error(t, err)
	assert.True(t, utils.ErrKind(err, utils.KindWrongTimeLineLength))
}

func TestMaskTimespan(t *testing.T) {
	parse := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}
	dates := []time.Time{parse("2020-01-10"), parse("2020-02-10"), parse("2020-03-10")}

	from := parse("2020-02-10")
	to := parse("2020-03-01")

	assert.Equal(t, []bool{false, true, false}, MaskTimespan(dates, &from, &to))
	// open bounds are unconstrained on that side
	assert.Equal(t, []bool{false, true, true}, MaskTimespan(dates, &from, nil))
	assert.Equal(t, []bool{true, true, false}, MaskTimespan(dates, nil, &to))
	assert.Equal(t, []bool{true, true, true}, MaskTimespan(dates, nil, nil))
}
