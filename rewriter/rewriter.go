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

package rewriter

import "github.com/pkg/errors"

// Backend names the bitcode dialect a Module was parsed from and must be
// compiled back to. The command-buffer interceptor and pipeline compiler
// are exercised against both, using gogpu/wgpu's per-backend split as the
// generalization template since this repository has no DX12 code
// of its own.
type Backend int

const (
	BackendDXIL Backend = iota
	BackendSPIRV
)

// Module is one shader/pipeline's decoded bitcode: the physical-block
// scan that precedes the function-block rewriter.
type Module struct {
	Backend Backend
	Scan *BlockScanner
}

// ParsedModule is the result of running the function-block rewriter over
// every function of a Module.
type ParsedModule struct {
	Backend Backend
	Functions []*Function
}

// Parse runs ParseFunctionBlock over every function in mod, in order.
func Parse(mod Module, functionRecords [][]Record) (*ParsedModule, error) {
	out := &ParsedModule{Backend: mod.Backend}
	for i, records := range functionRecords {
		fn, err := ParseFunctionBlock(records, mod.Scan)
		if err != nil {
			return nil, errors.Wrapf(err, "function %d", i)
		}
		out.Functions = append(out.Functions, fn)
	}
	return out, nil
}

// Compile stitches every parsed function back into bitcode records,
// migrating constants first so stitch-time patching has relocations to
// consult. startID is the first bitcode ID available after the module's
// global/constants/metadata/symbol blocks.
func Compile(parsed *ParsedModule, migrator *ConstantMigrator, startID uint32) ([]StitchedFunction, error) {
	stitcher := NewStitcher(startID)
	out, _, err := stitcher.CompileModule(parsed.Functions, migrator)
	return out, err
}

// Rewrite is the top-level entry point: parse every function, then
// compile them back into bitcode, wiring the constant migrator between
// the two stages.
func Rewrite(mod Module, functionRecords [][]Record, migrator *ConstantMigrator, startID uint32) ([]StitchedFunction, error) {
	parsed, err := Parse(mod, functionRecords)
	if err != nil {
		return nil, err
	}
	return Compile(parsed, migrator, startID)
}
