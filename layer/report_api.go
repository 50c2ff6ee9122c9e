// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements the Layer API: create_report, destroy_report,
// begin_report, end_report, get_report_status, flush_report,
// print_report/print_summary/export_report and get_report_info, plus the
// cmdbuf.ReportSource adapter Device.active satisfies for the
// command-buffer interceptor.
package layer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gapid-shaderlayer/gpuav/report"
)

// Status mirrors {Idle, Recording, Processing} tri-state.
type Status int

const (
	Idle Status = iota
	Recording
	Processing
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case Processing:
		return "Processing"
	}
	return "Unknown"
}

// ErrReportAlreadyActive is returned by BeginReport when a recording
// session is already underway.
var ErrReportAlreadyActive = errors.New("layer: a report is already recording")

// ErrNoActiveReport is returned by operations that require a recording or
// just-ended session when none exists.
var ErrNoActiveReport = errors.New("layer: no active report")

// Report is the Layer API's report_handle: a create_report-allocated slot
// that may or may not currently be recording.
type Report struct {
	device *Device
	inner *report.Report

	featureMask uint64
	capturedShaderCommit uint64
	capturedPipelineCommit uint64

	recording bool
}

// CreateReport allocates a report handle bound to this device. It is not
// yet recording.
func (d *Device) CreateReport() *Report {
	return &Report{device: d}
}

// DestroyReport releases r. If r was recording, it is ended first.
func (d *Device) DestroyReport(r *Report) {
	d.mu.Lock()
	if d.active == r {
		if r.recording {
			r.inner.End(d.now())
			r.recording = false
		}
		d.active = nil
	}
	d.mu.Unlock()
}

// BeginReport starts recording on r with the given feature mask active,
// capturing the compiler commits observed at this instant so the
// command-buffer interceptor (cmdbuf.State.Begin) only instruments
// recordings whose shader/pipeline dependencies have already compiled
// under this feature mask.
func (d *Device) BeginReport(r *Report, begin report.BeginInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return ErrReportAlreadyActive
	}
	r.inner = report.New(begin, d.now())
	r.featureMask = begin.FeatureMask
	r.capturedShaderCommit = uint64(d.Shaders.LatestCommit())
	r.capturedPipelineCommit = uint64(d.Pipelines.LatestCommit())
	r.recording = true
	d.active = r
	return nil
}

// now is the injected clock seam so tests can stub wall-clock ordering.
func (d *Device) now() time.Time { return time.Now() }

// EndReport stops accepting new messages on r.
func (d *Device) EndReport(r *Report) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != r || r.inner == nil {
		return ErrNoActiveReport
	}
	r.inner.End(d.now())
	r.recording = false
	return nil
}

// GetReportStatus reports whether r is idle, still recording, or
// recording has ended but in-flight allocations are still draining.
func (d *Device) GetReportStatus(r *Report) Status {
	d.mu.Lock()
	isActive := d.active == r
	d.mu.Unlock()
	if r.inner == nil {
		return Idle
	}
	if isActive && r.recording {
		return Recording
	}
	if d.Alloc.OutstandingCount() > 0 || d.Filter.PendingDepth() > 0 {
		return Processing
	}
	return Idle
}

// FlushReport blocks until every in-flight allocation tied to r has been
// filtered. It polls the allocator's outstanding count
// and the filter worker's queue depth concurrently via an errgroup so a
// caller managing several devices can flush them in parallel without
// serializing on this one's poll loop.
func (d *Device) FlushReport(ctx context.Context, r *Report) error {
	if r.inner == nil {
		return ErrNoActiveReport
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pollUntilZero(ctx, d.Alloc.OutstandingCount) })
	g.Go(func() error { return pollUntilZero(ctx, d.Filter.PendingDepth) })
	return g.Wait()
}

func pollUntilZero(ctx context.Context, count func() int) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetReportInfo populates get_report_info output: the
// conservation counters plus the time series.
func (d *Device) GetReportInfo(r *Report) (report.Info, error) {
	if r.inner == nil {
		return report.Info{}, ErrNoActiveReport
	}
	return r.inner.GetInfo(), nil
}

// PrintSummary renders the per-pass GenerateReport lines plus the
// conservation counters as a human-readable block.
func (d *Device) PrintSummary(r *Report) (string, error) {
	if r.inner == nil {
		return "", ErrNoActiveReport
	}
	info := r.inner.GetInfo()
	var b strings.Builder
	fmt.Fprintf(&b, "received=%d exported=%d filtered=%d latent_undershoots=%d latent_overshoots=%d\n",
		info.Received, info.Exported, info.Filtered, info.LatentUndershoots, info.LatentOvershoots)
	for _, line := range d.Registry.GenerateReport() {
		fmt.Fprintln(&b, line)
	}
	return b.String(), nil
}

// PrintReport renders every recorded message, one per line, ordered as
// recorded.
func (d *Device) PrintReport(r *Report) (string, error) {
	if r.inner == nil {
		return "", ErrNoActiveReport
	}
	var b strings.Builder
	for _, m := range r.inner.Messages() {
		fmt.Fprintf(&b, "code=%d sguid=%d count=%d %s\n", m.Code, m.SGUID, r.inner.CountFor(m.Code, m.SGUID), m.StrRef)
	}
	return b.String(), nil
}

// ExportFormat names one of export_report formats.
type ExportFormat int

const (
	ExportCSV ExportFormat = iota
	ExportHTML
)

// ErrUnknownExportFormat is returned by ExportReport for any format other
// than ExportCSV/ExportHTML.
var ErrUnknownExportFormat = errors.New("layer: unknown export format")

// ExportReport renders r's messages in the requested external format.
func (d *Device) ExportReport(r *Report, format ExportFormat) (string, error) {
	if r.inner == nil {
		return "", ErrNoActiveReport
	}
	msgs := r.inner.Messages()
	sorted := append([]report.Message(nil), msgs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Code != sorted[j].Code {
			return sorted[i].Code < sorted[j].Code
		}
		return sorted[i].SGUID < sorted[j].SGUID
	})

	var b strings.Builder
	switch format {
	case ExportCSV:
		b.WriteString("code,sguid,count,str_ref\n")
		for _, m := range sorted {
			fmt.Fprintf(&b, "%d,%d,%d,%q\n", m.Code, m.SGUID, r.inner.CountFor(m.Code, m.SGUID), m.StrRef)
		}
	case ExportHTML:
		b.WriteString("<table><tr><th>code</th><th>sguid</th><th>count</th><th>detail</th></tr>\n")
		for _, m := range sorted {
			fmt.Fprintf(&b, "<tr><td>%d</td><td>%d</td><td>%d</td><td>%s</td></tr>\n",
				m.Code, m.SGUID, r.inner.CountFor(m.Code, m.SGUID), m.StrRef)
		}
		b.WriteString("</table>\n")
	default:
		return "", errors.Wrapf(ErrUnknownExportFormat, "%d", format)
	}
	return b.String(), nil
}

// Active, FeatureMask, CapturedShaderCommit and CapturedPipelineCommit
// implement cmdbuf.ReportSource against this device's single active
// report, so cmdbuf.State.Begin can decide whether to instrument a
// command buffer without depending on this package.
func (d *Device) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil && d.active.recording
}

func (d *Device) FeatureMask() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return 0
	}
	return d.active.featureMask
}

func (d *Device) CapturedShaderCommit() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return 0
	}
	return d.active.capturedShaderCommit
}

func (d *Device) CapturedPipelineCommit() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return 0
	}
	return d.active.capturedPipelineCommit
}
