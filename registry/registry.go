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

// Package registry implements the Diagnostic Registry: the namespace
// for message/storage/descriptor/descriptor-storage/push-constant UIDs,
// the message-type-to-pass lookup table, and the single entry point that
// fans instrumentation passes into one notional IR-optimizer run.
package registry

import (
	"sync"

	"github.com/pkg/errors"
)

// MaxMessageTypes is the largest number of distinct message kinds the
// 6-bit message-type field can encode.
const MaxMessageTypes = 64

// FeatureBit identifies one instrumentation feature (bounds checking,
// initialization tracking, data-race detection, ...).
type FeatureBit uint32

// UIDKind names one of the five UID namespaces a Pass can draw from.
type UIDKind int

const (
	MessageUID UIDKind = iota
	StorageUID
	DescriptorUID
	DescriptorStorageUID
	PushConstantUID
	numUIDKinds
)

// ErrUIDSpaceExhausted is returned when a UID namespace head counter would
// wrap, which would alias two passes' messages onto the same type.
var ErrUIDSpaceExhausted = errors.New("registry: UID namespace exhausted")

// ErrLateRegistration is returned when a Pass is registered after the
// registry has already been compiled into a pipeline (Freeze has been
// called).
var ErrLateRegistration = errors.New("registry: late registration after freeze")

// CmdBufVersion identifies the command-buffer generation a batch of raw
// GPU messages was produced under, passed through to Pass.Handle so a pass
// can discard messages from a stale generation.
type CmdBufVersion uint64

// Message is a single decoded diagnostic record.
type Message struct {
	Type uint8
	Body uint32
}

// Pass is the plug-in interface a single instrumentation pass (bounds
// check, initialization, data race, ...) implements. The passes themselves
// are out of scope; this interface is their contract.
type Pass interface {
	// Name identifies the pass for logging and UID-exhaustion errors.
	Name() string
	// Feature is the single feature bit this pass serves.
	Feature() FeatureBit
	// MessageTypes returns the 6-bit message-type values this pass owns.
	MessageTypes() []uint8
	// Handle is invoked once per message whose type this pass owns.
	// It returns true if the message should be retained in the report.
	Handle(cmdbuf CmdBufVersion, msg Message) bool
	// EnumerateStorage appends this pass's storage-resource descriptors.
	// A nil out requests only a count.
	EnumerateStorage(out []StorageDescriptor) int
	// EnumerateDescriptors appends this pass's descriptor-set bindings.
	EnumerateDescriptors(out []DescriptorDescriptor) int
	// EnumeratePushConstants appends this pass's push-constant ranges.
	EnumeratePushConstants(out []PushConstantDescriptor) int
	// UpdatePushConstants writes this pass's push-constant bytes at its
	// reserved offset into data, returning the number of bytes written.
	UpdatePushConstants(cmdbuf CmdBufVersion, data []byte) int
	// GenerateReport appends any pass-owned summary lines to a report.
	GenerateReport() []string
	// StepReport returns a point-in-time snapshot the Report Store
	// attaches to its periodic step records.
	StepReport() map[string]uint64
	// Flush clears any pass-local accumulated state.
	Flush()
}

// StorageDescriptor, DescriptorDescriptor and PushConstantDescriptor are
// the three two-phase enumeration record shapes.
type StorageDescriptor struct {
	UID uint16
	Size uint32
}

type DescriptorDescriptor struct {
	UID uint16
	Binding uint32
	Count uint32
}

type PushConstantDescriptor struct {
	UID uint16
	Offset uint32
	Size uint32
}

type registeredPass struct {
	pass Pass
	feature FeatureBit
}

// Registry is the namespace and dispatch table described by // The zero value is not usable; use New.
type Registry struct {
	mu sync.Mutex

	heads [numUIDKinds]uint16
	passes []registeredPass
	// byType maps a message type (0..63) to the index in passes that owns
	// it, or -1 if unowned.
	byType [MaxMessageTypes]int
	frozen bool
}

// New returns an empty Registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.byType {
		r.byType[i] = -1
	}
	return r
}

// allocUID bumps the head counter for kind and returns the new UID, or
// ErrUIDSpaceExhausted if doing so would wrap past uint16's range.
func (r *Registry) allocUID(kind UIDKind) (uint16, error) {
	if r.heads[kind] == ^uint16(0) {
		return 0, ErrUIDSpaceExhausted
	}
	uid := r.heads[kind]
	r.heads[kind]++
	return uid, nil
}

// AllocUID allocates the next UID in the given namespace. It is exposed so
// that a Pass can mint its own storage/descriptor/push-constant UIDs
// before registering.
func (r *Registry) AllocUID(kind UIDKind) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocUID(kind)
}

// Register appends p to the active list, recording the feature bit it
// serves and claiming its declared message-type ownership in the lookup
// table. Passes registered after Freeze has been called are rejected with
// ErrLateRegistration, matching "allocating past compilation"
// failure semantics.
func (r *Registry) Register(featureID FeatureBit, p Pass) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.Wrapf(ErrLateRegistration, "pass %q", p.Name())
	}
	msgTypes := p.MessageTypes()
	for _, t := range msgTypes {
		if int(t) >= MaxMessageTypes {
			return errors.Errorf("registry: message type %d exceeds MaxMessageTypes", t)
		}
		if r.byType[t] != -1 {
			return errors.Errorf("registry: message type %d already owned by %q", t, r.passes[r.byType[t]].pass.Name())
		}
	}

	idx := len(r.passes)
	r.passes = append(r.passes, registeredPass{pass: p, feature: featureID})
	for _, t := range msgTypes {
		r.byType[t] = idx
	}
	return nil
}

// Freeze marks the registry as compiled into a pipeline: further
// Register calls are rejected.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the pass responsible for featureID iff that bit is set in
// activeFeatures and a pass serving it is registered.
func (r *Registry) Get(activeFeatures uint64, featureID FeatureBit) (Pass, bool) {
	if activeFeatures&(1<<uint(featureID)) == 0 {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rp := range r.passes {
		if rp.feature == featureID {
			return rp.pass, true
		}
	}
	return nil, false
}

// active returns the passes whose feature bit is set in activeFeatures, in
// registration order.
func (r *Registry) active(activeFeatures uint64) []Pass {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Pass, 0, len(r.passes))
	for _, rp := range r.passes {
		if activeFeatures&(1<<uint(rp.feature)) != 0 {
			out = append(out, rp.pass)
		}
	}
	return out
}

// UpdatePushConstants asks every active pass to append bytes at its
// reserved offset, returning the total bytes written.
func (r *Registry) UpdatePushConstants(cmdbuf CmdBufVersion, activeFeatures uint64, data []byte) int {
	total := 0
	for _, p := range r.active(activeFeatures) {
		total += p.UpdatePushConstants(cmdbuf, data)
	}
	return total
}

// Handle dispatches each message to its owning pass by type, in the order
// messages appear in the GPU buffer, and returns the count the passes
// elected to retain.
func (r *Registry) Handle(cmdbuf CmdBufVersion, messages []Message) int {
	return r.HandleWithObserver(cmdbuf, messages, nil)
}

// HandleWithObserver behaves exactly like Handle, additionally invoking
// observe once per message with that message and whether its owning pass
// retained it (false for a message whose type has no registered owner).
// The Report Store uses this to maintain its own received/exported/
// filtered accounting without re-implementing the
// dispatch-table walk.
func (r *Registry) HandleWithObserver(cmdbuf CmdBufVersion, messages []Message, observe func(Message, bool)) int {
	r.mu.Lock()
	byType := r.byType
	passes := r.passes
	r.mu.Unlock()

	retained := 0
	for _, m := range messages {
		if int(m.Type) >= MaxMessageTypes {
			if observe != nil {
				observe(m, false)
			}
			continue
		}
		idx := byType[m.Type]
		if idx < 0 {
			if observe != nil {
				observe(m, false)
			}
			continue
		}
		ok := passes[idx].pass.Handle(cmdbuf, m)
		if ok {
			retained++
		}
		if observe != nil {
			observe(m, ok)
		}
	}
	return retained
}

// GenerateReport fans out to every registered pass.
func (r *Registry) GenerateReport() []string {
	r.mu.Lock()
	passes := append([]registeredPass(nil), r.passes...)
	r.mu.Unlock()

	var out []string
	for _, rp := range passes {
		out = append(out, rp.pass.GenerateReport()...)
	}
	return out
}

// StepReport fans out to every registered pass and merges the results,
// later passes' keys taking precedence on collision (passes are expected
// to namespace their own keys).
func (r *Registry) StepReport() map[string]uint64 {
	r.mu.Lock()
	passes := append([]registeredPass(nil), r.passes...)
	r.mu.Unlock()

	out := map[string]uint64{}
	for _, rp := range passes {
		for k, v := range rp.pass.StepReport() {
			out[k] = v
		}
	}
	return out
}

// Flush fans out to every registered pass.
func (r *Registry) Flush() {
	r.mu.Lock()
	passes := append([]registeredPass(nil), r.passes...)
	r.mu.Unlock()
	for _, rp := range passes {
		rp.pass.Flush()
	}
}
