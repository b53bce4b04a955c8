package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"
)

// FieldSummary aggregates one numeric column.
type FieldSummary struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
}

// CategorySummary aggregates one report CSV.
type CategorySummary struct {
	Category    string         `json:"category"`
	Rows        int            `json:"rows"`
	Successes   int            `json:"successes"`
	SuccessRate float64        `json:"success_rate"`
	Fields      []FieldSummary `json:"fields"`
}

// Report is the aggregate over every category in a reports directory.
type Report struct {
	Categories []CategorySummary `json:"categories"`
}

// Summarize aggregates every <dir>/<category>/<category>.csv. A column is
// numeric when every non-empty value in it parses as a number.
func Summarize(dir string) (*Report, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*", "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	report := &Report{Categories: []CategorySummary{}}
	for _, path := range files {
		if filepath.Base(filepath.Dir(path)) == "archives" {
			continue
		}
		summary, err := summarizeFile(path)
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", path, err)
		}
		report.Categories = append(report.Categories, summary)
	}
	return report, nil
}

func summarizeFile(path string) (CategorySummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return CategorySummary{}, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return CategorySummary{}, err
	}

	category := filepath.Base(filepath.Dir(path))
	summary := CategorySummary{Category: category, Fields: []FieldSummary{}}
	if len(rows) == 0 {
		return summary, nil
	}
	headers, data := rows[0], rows[1:]
	summary.Rows = len(data)

	for col, name := range headers {
		if name == "success" {
			for _, row := range data {
				if col < len(row) {
					if ok, _ := strconv.ParseBool(row[col]); ok {
						summary.Successes++
					}
				}
			}
			continue
		}

		field := FieldSummary{Name: name}
		numeric := true
		for _, row := range data {
			if col >= len(row) || row[col] == "" {
				continue
			}
			v, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				numeric = false
				break
			}
			field.Count++
			field.Sum += v
		}
		if !numeric || field.Count == 0 {
			continue
		}
		field.Mean = field.Sum / float64(field.Count)
		summary.Fields = append(summary.Fields, field)
	}

	if summary.Rows > 0 {
		summary.SuccessRate = float64(summary.Successes) / float64(summary.Rows)
	}
	return summary, nil
}

// Write prints the report as aligned text.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range r.Categories {
		fmt.Fprintf(tw, "%s\trows=%d\tsuccess=%.1f%%\n", c.Category, c.Rows, c.SuccessRate*100)
		for _, f := range c.Fields {
			fmt.Fprintf(tw, "  %s\tcount=%d\tsum=%.2f\tmean=%.2f\n", f.Name, f.Count, f.Sum, f.Mean)
		}
	}
	return tw.Flush()
}
