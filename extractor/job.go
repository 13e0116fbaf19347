package extractor

import (
	"github.com/sirupsen/logrus"

	"github.com/nci/geodrill/utils"
)

// RunJob runs one extraction described by a job descriptor: it opens the
// samples table, fetches the rows and extracts the per-sample series. All
// resources are released before returning.
func RunJob(job *utils.ExtractionJob) ([][]BandSeries, error) {
	logrus.Debugf("extractor: running job over %s", job.SamplesPath)

	samples, err := OpenSamples(job.SamplesPath)
	if err != nil {
		return nil, err
	}
	defer samples.Close()

	if err := samples.FetchData(); err != nil {
		return nil, err
	}
	return samples.ExtractTimeSeries(job.RowIndices, job.FilterInterval)
}
