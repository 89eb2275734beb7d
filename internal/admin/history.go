package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/robosim/internal/device"
	"github.com/banshee-data/robosim/internal/httputil"
)

// handleHistory renders a device's buffered samples. Query params:
//   - device (required)
//   - from, to (optional; default the whole buffer, newest is index 0)
//   - format=json returns the raw samples instead of a chart
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	c, ok := s.lookup(w, r.URL.Query().Get("device"))
	if !ok {
		return
	}

	from, to := c.Len(), 0
	for name, dst := range map[string]*int{"from": &from, "to": &to} {
		if v := r.URL.Query().Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				httputil.BadRequest(w, fmt.Sprintf("invalid %s %q", name, v))
				return
			}
			*dst = n
		}
	}

	samples, err := c.QueryErr(device.Range(from, to))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if samples == nil {
		samples = []device.Sample{}
	}
	if r.URL.Query().Get("format") == "json" {
		httputil.WriteJSONOK(w, samples)
		return
	}

	line := historyChart(c.Descriptor(), samples)
	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// historyChart plots every numeric field of the samples, oldest on the left.
// The subtitle carries the mean and standard deviation of each series.
func historyChart(desc device.Descriptor, samples []device.Sample) *charts.Line {
	n := len(samples)
	labels := make([]string, n)
	fields := make([]map[string]float64, n)
	names := make(map[string]bool)
	for i, smp := range samples {
		// samples arrive newest first
		j := n - 1 - i
		labels[j] = smp.Timestamp.Format("15:04:05.000")
		fields[j] = numericFields(smp.Value)
		for k := range fields[j] {
			names[k] = true
		}
	}
	series := make([]string, 0, len(names))
	for k := range names {
		series = append(series, k)
	}
	sort.Strings(series)

	var summary []string
	line := charts.NewLine()
	line.SetXAxis(labels)
	for _, name := range series {
		data := make([]opts.LineData, n)
		var values []float64
		for i, f := range fields {
			v, ok := f[name]
			if !ok {
				data[i] = opts.LineData{Value: nil}
				continue
			}
			data[i] = opts.LineData{Value: v}
			values = append(values, v)
		}
		if len(values) > 0 {
			mean, std := stat.MeanStdDev(values, nil)
			if len(values) == 1 {
				std = 0
			}
			summary = append(summary, fmt.Sprintf("%s mean=%.3g sd=%.3g", name, mean, std))
		}
		line.AddSeries(name, data)
	}

	subtitle := fmt.Sprintf("%s %s samples=%d", desc.Type, desc.Mode, n)
	if len(summary) > 0 {
		subtitle += " | " + strings.Join(summary, ", ")
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Device History", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: desc.ID, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	return line
}

// numericFields flattens a sample value into named numbers. Scalars become
// "value", objects contribute their top-level numeric fields, and arrays of
// numbers (lidar scans) are reduced to their mean. Booleans count as 0 or 1.
func numericFields(v any) map[string]float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return map[string]float64{"value": x}
	case int:
		return map[string]float64{"value": float64(x)}
	case bool:
		return map[string]float64{"value": boolFloat(x)}
	case time.Time:
		return nil
	}

	// everything else goes through its JSON form
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil
	}
	out := make(map[string]float64)
	switch g := generic.(type) {
	case float64:
		out["value"] = g
	case bool:
		out["value"] = boolFloat(g)
	case map[string]any:
		for k, val := range g {
			switch f := val.(type) {
			case float64:
				out[k] = f
			case bool:
				out[k] = boolFloat(f)
			}
		}
	case []any:
		var nums []float64
		for _, e := range g {
			if f, ok := e.(float64); ok {
				nums = append(nums, f)
			}
		}
		if len(nums) > 0 {
			out["mean"] = stat.Mean(nums, nil)
		}
		out["count"] = float64(len(g))
	}
	return out
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
