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

// Command gpuavctl is a small operator CLI over the layer package: it
// drives a Device through the Layer API without a real host graphics
// driver attached, for smoke-testing a build. Its one verb,
// smoke-report, is dispatched from a plain name-to-function map rather
// than a flag-binding framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gapid-shaderlayer/gpuav/allocator"
	"github.com/gapid-shaderlayer/gpuav/layer"
	"github.com/gapid-shaderlayer/gpuav/registry"
	"github.com/gapid-shaderlayer/gpuav/report"
)

type verb func(ctx context.Context, args []string) error

var verbs = map[string]verb{
	"smoke-report": runSmokeReport,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	v, ok := verbs[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := v(context.Background(), os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "gpuavctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gpuavctl <verb> [flags]")
	fmt.Fprintln(os.Stderr, "verbs:")
	for name := range verbs {
		fmt.Fprintln(os.Stderr, " "+name)
	}
}

// echoPass is a minimal registry.Pass that retains every message it owns;
// enough to drive a Device's full report lifecycle without a real
// instrumentation pass attached.
type echoPass struct{ messageType uint8 }

func (p echoPass) Name() string { return "smoke-echo" }
func (p echoPass) Feature() registry.FeatureBit { return 0 }
func (p echoPass) MessageTypes() []uint8 { return []uint8{p.messageType} }
func (p echoPass) Handle(registry.CmdBufVersion, registry.Message) bool { return true }
func (p echoPass) EnumerateStorage([]registry.StorageDescriptor) int { return 0 }
func (p echoPass) EnumerateDescriptors([]registry.DescriptorDescriptor) int {
	return 0
}
func (p echoPass) EnumeratePushConstants([]registry.PushConstantDescriptor) int {
	return 0
}
func (p echoPass) UpdatePushConstants(registry.CmdBufVersion, []byte) int { return 0 }
func (p echoPass) GenerateReport() []string { return nil }
func (p echoPass) StepReport() map[string]uint64 { return nil }
func (p echoPass) Flush() {}

// runSmokeReport drives a Device through create/begin/submit/end/flush,
// and prints the resulting summary, exercising the Layer API end to end with a single synthetic message.
func runSmokeReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("smoke-report", flag.ContinueOnError)
	format := fs.String("format", "summary", "one of: summary, csv, html")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d := layer.NewDevice(ctx, layer.Options{ShaderWorkers: 1, PipelineWorkers: 1})
	defer d.Shutdown()
	if err := d.Registry.Register(0, echoPass{messageType: 0}); err != nil {
		return err
	}
	d.Registry.Freeze()

	r := d.CreateReport()
	if err := d.BeginReport(r, report.BeginInfo{FeatureMask: 1}); err != nil {
		return err
	}

	alloc, err := d.Alloc.PopAllocation(nil, "gpuavctl")
	if err != nil {
		return err
	}
	fence := d.Alloc.PopFence()
	d.Alloc.GroupOnFence(fence, []*allocator.Allocation{alloc})
	alloc.BeginTransfer()
	alloc.MarkReady(allocator.DiagnosticData{
			MessageCount: 1,
			MessageLimit: alloc.MessageLimit,
			Messages: []uint32{0},
	})
	d.Filter.Submit(alloc)

	if err := d.EndReport(r); err != nil {
		return err
	}
	if err := d.FlushReport(ctx, r); err != nil {
		return err
	}

	var out string
	switch *format {
	case "csv":
		out, err = d.ExportReport(r, layer.ExportCSV)
	case "html":
		out, err = d.ExportReport(r, layer.ExportHTML)
	default:
		out, err = d.PrintSummary(r)
	}
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
