package output

import (
	"encoding/json"
	"io"
	"time"
)

type JSONFormatter struct{}

type Summary struct {
	TotalKeys       int           `json:"total_operations"`
	TotalTime       time.Duration `json:"total_time"`
	TotalTimeString string        `json:"total_time_string"`
	Throughput      float64       `json:"throughput_ops_per_sec"`
}

type JSONOutput struct {
	Timestamp  time.Time `json:"timestamp"`
	SystemInfo any       `json:"system_info"`
	Config     any       `json:"config"`
	Results    any       `json:"results"`
	Summary    Summary   `json:"summary"`
}

func (j *JSONFormatter) Format(w io.Writer, data Data) error {
	output := JSONOutput{
		Timestamp:  time.Now(),
		SystemInfo: data.SystemInfo,
		Config:     data.Config,
		Results:    data.Results,
		Summary:    summarize(data),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func summarize(data Data) Summary {
	var s Summary
	for _, result := range data.Results {
		s.TotalKeys += (result.Iterations * result.Parallel) - result.Errors
		s.TotalTime += result.TotalTime
	}
	s.TotalTimeString = s.TotalTime.String()
	if s.TotalTime > 0 {
		s.Throughput = float64(s.TotalKeys) / s.TotalTime.Seconds()
	}
	return s
}
