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

// Package hostapi resolves the host graphics API's per-device/per-instance
// function-pointer dispatch table. The per-entry-point Vulkan/DX12 API
// shims that forward through this table are mechanical and explicitly
// out of scope; this package only resolves symbol addresses into a
// Table, the one piece of that boundary genuinely owned here.
package hostapi

import "github.com/pkg/errors"

// EntryPoint names one host-API function this layer must intercept.
type EntryPoint string

// Required is the fixed set of entry points this layer requires
// resolvable at device/instance creation.
var Required = []EntryPoint{
	"vkCreateShaderModule", "vkDestroyShaderModule",
	"vkCreateGraphicsPipelines", "vkCreateComputePipelines",
	"vkCreateDescriptorSetLayout", "vkCreateDescriptorPool",
	"vkAllocateDescriptorSets", "vkUpdateDescriptorSets", "vkResetDescriptorPool",
	"vkCreatePipelineLayout",
	"vkBeginCommandBuffer", "vkEndCommandBuffer",
	"vkCmdBindPipeline", "vkCmdBindDescriptorSets", "vkCmdPushConstants",
	"vkCmdDispatch", "vkCmdDraw", "vkCmdDrawIndexed",
	"vkCmdCopyBuffer", "vkCmdCopyImage", "vkCmdBlitImage", "vkCmdClearColorImage", "vkCmdResolveImage",
	"vkCmdBeginRenderPass", "vkCmdEndRenderPass",
	"vkQueueSubmit", "vkQueuePresentKHR",
	"vkWaitForFences", "vkGetFenceStatus",
}

// Resolver looks up a raw function pointer for name, returning ok=false if
// the loader has no such symbol.
type Resolver interface {
	Resolve(name string) (addr uintptr, ok bool)
}

// ErrUnresolvedEntryPoint is wrapped with the offending entry point's name.
var ErrUnresolvedEntryPoint = errors.New("hostapi: required entry point unresolved")

// Table is the resolved dispatch table: a name -> raw function-pointer
// address map, keyed by EntryPoint, built once at device/instance
// creation and never mutated afterward.
type Table struct {
	addrs map[EntryPoint]uintptr
}

// Build resolves every entry in Required via r, returning a Table or the
// first ErrUnresolvedEntryPoint encountered.
func Build(r Resolver) (*Table, error) {
	t := &Table{addrs: make(map[EntryPoint]uintptr, len(Required))}
	for _, ep := range Required {
		addr, ok := r.Resolve(string(ep))
		if !ok {
			return nil, errors.Wrapf(ErrUnresolvedEntryPoint, "%s", ep)
		}
		t.addrs[ep] = addr
	}
	return t, nil
}

// Lookup returns the resolved address for ep, or 0, false if Build never
// saw it (should not happen for any entry in Required once Build
// succeeds).
func (t *Table) Lookup(ep EntryPoint) (uintptr, bool) {
	addr, ok := t.addrs[ep]
	return addr, ok
}
