package utils

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// ExtractionJob describes one extraction run over a samples table. Host code
// loads a job from YAML and hands it to the extractor.
type ExtractionJob struct {
	SamplesPath    string `yaml:"samples_path"`
	RowIndices     []int  `yaml:"row_indices,omitempty"`
	FilterInterval bool   `yaml:"filter_sample_interval"`
	Seed           int64  `yaml:"seed,omitempty"`
}

// LoadExtractionJob reads and validates a YAML job descriptor.
func LoadExtractionJob(filename string) (*ExtractionJob, error) {
	rawData, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var job ExtractionJob
	if err := yaml.Unmarshal(rawData, &job); err != nil {
		return nil, fmt.Errorf("error parsing job file %s: %v", filename, err)
	}

	if len(job.SamplesPath) == 0 {
		return nil, fmt.Errorf("job file %s has no samples_path", filename)
	}

	for _, idx := range job.RowIndices {
		if idx < 0 {
			return nil, fmt.Errorf("job file %s has negative row index %d", filename, idx)
		}
	}

	return &job, nil
}
