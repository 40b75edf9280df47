package benchmark

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	json "github.com/goccy/go-json"
)

// Result is the measurement of one strategy run.
type Result struct {
	Name           string  `json:"name"`
	Strategy       string  `json:"strategy"`
	Threads        int     `json:"threads"`
	Workers        int     `json:"workers,omitempty"`
	Seconds        float64 `json:"seconds"`
	SpectralError  float64 `json:"spectral_error"`
	RelativeError  float64 `json:"relative_error"`
	FrobeniusError float64 `json:"frobenius_error"`
	Usage          Usage   `json:"usage"`
	Cached         bool    `json:"cached,omitempty"`
	Err            string  `json:"error,omitempty"`
}

// Report collects every result of a benchmark run.
type Report struct {
	Started      time.Time `json:"started"`
	GoVersion    string    `json:"go_version"`
	Platform     string    `json:"platform"`
	CPUs         int       `json:"cpus"`
	XRows        int       `json:"x_rows"`
	YRows        int       `json:"y_rows"`
	Columns      int       `json:"columns"`
	L            int       `json:"l"`
	Beta         float64   `json:"beta"`
	ExactSeconds float64   `json:"exact_seconds"`
	ExactNorm    float64   `json:"exact_norm"`
	Results      []Result  `json:"results"`
}

func newReport(s Settings, xRows, yRows, cols int) *Report {
	return &Report{
		Started:   time.Now().UTC(),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		XRows:     xRows,
		YRows:     yRows,
		Columns:   cols,
		L:         s.L,
		Beta:      s.Beta,
	}
}

// WriteTable prints one line per result.
func (r *Report) WriteTable(w io.Writer) {
	fmt.Fprintf(w, "Lib-MM %.0fms\n", r.ExactSeconds*1000)
	for _, res := range r.Results {
		if res.Err != "" {
			fmt.Fprintf(w, " %23s:  skipped - %s\n", res.Name, res.Err)
			continue
		}
		fmt.Fprintf(w, " %23s:  Time - %8.4fs;  CPU - %8.4fs;  RSS - %6.1fMB;  Error - %.4g",
			res.Name, res.Seconds, res.Usage.CPUSeconds, float64(res.Usage.PeakRSS)/(1<<20), res.SpectralError)
		if res.Cached {
			fmt.Fprint(w, " (cached)")
		}
		fmt.Fprintln(w)
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Save writes the JSON report to path.
func (r *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadReport reads a JSON report.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return &r, nil
}
