package reporting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"netrecon/internal/analysis"
)

// WriteDashboard renders the persisted datasets next to summaryPath into a
// single self-contained HTML page. It aggregates nothing itself: rankings
// it needs beyond the summary are recomputed from the already-bounded CSV
// tables, never from packets.
func WriteDashboard(summaryPath, outPath string) error {
	raw, err := os.ReadFile(summaryPath)
	if err != nil {
		return fmt.Errorf("read summary: %w", err)
	}
	var summary analysis.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return fmt.Errorf("parse summary: %w", err)
	}

	dir := filepath.Dir(summaryPath)
	topN := summary.TopN
	if topN < 1 {
		topN = 15
	}

	protocols, err := loadRows(filepath.Join(dir, ProtocolsFile))
	if err != nil {
		return err
	}
	dnsRows, err := loadRows(filepath.Join(dir, DNSFile))
	if err != nil {
		return err
	}
	tlsRows, err := loadRows(filepath.Join(dir, TLSFile))
	if err != nil {
		return err
	}
	deviceRows, err := loadRows(filepath.Join(dir, DevicesFile))
	if err != nil {
		return err
	}

	resolution := summary.TimelineResolution
	if resolution == "" {
		resolution = "minute"
	}
	timelineRows, err := loadRows(filepath.Join(dir, TimelineFile(resolution)))
	if err != nil {
		return err
	}

	devices := make([]map[string]string, 0, len(deviceRows))
	for _, d := range deviceRows {
		if len(d) < 6 {
			continue
		}
		devices = append(devices, map[string]string{
			"mac": d[0], "vendor": d[1], "ips": d[2], "pkts": d[5],
		})
	}

	data := dashboardData{
		Title:      "Capture Metadata Report",
		Resolution: resolution,
		Summary:    jsonJS(summary),
		Protocols:  jsonJS(protocols),
		TopDNS:     jsonJS(rankColumn(dnsRows, 2, topN)),
		TopSNI:     jsonJS(rankColumn(tlsRows, 3, topN)),
		Devices:    jsonJS(devices),
		Timeline:   jsonJS(timelineRows),
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create dashboard: %w", err)
	}
	defer f.Close()
	if err := dashboardTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return f.Sync()
}

type dashboardData struct {
	Title      string
	Resolution string
	Summary    template.JS
	Protocols  template.JS
	TopDNS     template.JS
	TopSNI     template.JS
	Devices    template.JS
	Timeline   template.JS
}

// loadRows reads a dataset CSV without its header row. A missing dataset
// is an error: the writer promotes all files together, so absence means
// the directory is not a report.
func loadRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(rows) > 0 {
		rows = rows[1:]
	}
	return rows, nil
}

// rankColumn counts the values of one column and returns the top n as
// [value, count] pairs, ties resolved by first appearance.
func rankColumn(rows [][]string, col, n int) [][2]any {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := row[col]
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	out := make([][2]any, 0, len(order))
	for _, v := range order {
		out = append(out, [2]any{v, counts[v]})
	}
	// Stable selection sort over a small bounded table.
	for i := 0; i < len(out); i++ {
		best := i
		for j := i + 1; j < len(out); j++ {
			if out[j][1].(int) > out[best][1].(int) {
				best = j
			}
		}
		if best != i {
			picked := out[best]
			copy(out[i+1:best+1], out[i:best])
			out[i] = picked
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func jsonJS(v any) template.JS {
	data, err := json.Marshal(v)
	if err != nil {
		return template.JS("null")
	}
	return template.JS(data)
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: sans-serif; margin: 2em; background: #f9f9f9; color: #333; }
    h1, h2 { color: #2c3e50; }
    .card { background: white; padding: 1em; margin-bottom: 1.5em; border-radius: 8px; box-shadow: 0 2px 6px rgba(0,0,0,0.1); }
    canvas { max-width: 100%; height: 300px; }
    table { border-collapse: collapse; width: 100%; margin-top: 1em; }
    th, td { border: 1px solid #ccc; padding: 6px; text-align: left; }
    th { background: #eee; }
    pre { overflow-x: auto; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>

  <div class="card"><h2>Summary</h2><pre id="summary-block"></pre></div>
  <div class="card"><h2>Protocol Mix</h2><canvas id="protocolChart" width="800" height="300"></canvas></div>
  <div class="card"><h2>Traffic Timeline (packets per {{.Resolution}})</h2><canvas id="timelineChart" width="800" height="300"></canvas></div>
  <div class="card"><h2>Top DNS Queries</h2>
    <table id="dnsTable"><thead><tr><th>Domain</th><th>Count</th></tr></thead><tbody></tbody></table></div>
  <div class="card"><h2>Top TLS SNI</h2>
    <table id="sniTable"><thead><tr><th>Hostname</th><th>Count</th></tr></thead><tbody></tbody></table></div>
  <div class="card"><h2>Devices (MAC/IP)</h2>
    <table id="devicesTable"><thead><tr><th>MAC</th><th>Vendor</th><th>IPs</th><th>Packets</th></tr></thead><tbody></tbody></table></div>

  <script>
  // Minimal canvas chart renderer: pie and line are all the page needs.
  class MiniChart {
    constructor(el, cfg) { this.el = el; this.cfg = cfg; this.draw(); }
    draw() {
      const d = this.el.getContext("2d"), w = this.el.width, h = this.el.height, t = this.cfg;
      d.clearRect(0, 0, w, h);
      if (t.type === "pie") {
        const data = t.data, colors = t.colors, total = data.reduce((a, b) => a + b, 0) || 1;
        let angle = 0;
        for (let i = 0; i < data.length; i++) {
          const slice = 2 * Math.PI * data[i] / total;
          d.beginPath(); d.moveTo(w / 2, h / 2);
          d.arc(w / 2, h / 2, Math.min(w, h) / 2 - 4, angle, angle + slice);
          d.closePath(); d.fillStyle = colors[i % colors.length]; d.fill();
          angle += slice;
        }
      } else if (t.type === "line") {
        const ys = t.data, maxY = Math.max(...ys, 1), stepX = w / (ys.length || 1);
        d.strokeStyle = t.color; d.beginPath();
        for (let i = 0; i < ys.length; i++) {
          const x = i * stepX + stepX / 2, y = h - (ys[i] / maxY) * (h - 8) - 4;
          i === 0 ? d.moveTo(x, y) : d.lineTo(x, y);
        }
        d.stroke();
      }
    }
  }

  const summary = {{.Summary}};
  const protocols = {{.Protocols}};
  const topDNS = {{.TopDNS}};
  const topSNI = {{.TopSNI}};
  const devices = {{.Devices}};
  const timeline = {{.Timeline}};

  document.getElementById("summary-block").innerText = JSON.stringify(summary, null, 2);

  new MiniChart(document.getElementById("protocolChart"), {
    type: "pie",
    data: protocols.map(p => Number(p[1])),
    colors: ["#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f", "#edc949", "#af7aa1", "#ff9da7"]
  });

  new MiniChart(document.getElementById("timelineChart"), {
    type: "line",
    data: timeline.map(t => Number(t[1])),
    color: "#4e79a7"
  });

  function fillPairs(tableId, pairs) {
    const tbody = document.querySelector(tableId + " tbody");
    pairs.forEach(p => {
      const tr = document.createElement("tr");
      const a = document.createElement("td"); a.textContent = p[0];
      const b = document.createElement("td"); b.textContent = p[1];
      tr.append(a, b); tbody.appendChild(tr);
    });
  }
  fillPairs("#dnsTable", topDNS);
  fillPairs("#sniTable", topSNI);

  const devBody = document.querySelector("#devicesTable tbody");
  devices.forEach(dev => {
    const tr = document.createElement("tr");
    ["mac", "vendor", "ips", "pkts"].forEach(k => {
      const td = document.createElement("td"); td.textContent = dev[k]; tr.appendChild(td);
    });
    devBody.appendChild(tr);
  });
  </script>
</body>
</html>
`))
