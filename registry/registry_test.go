package registry

import "testing"

type fakePass struct {
	name string
	feature FeatureBit
	types []uint8
	handled []Message
	reported []string
}

func (p *fakePass) Name() string { return p.name }
func (p *fakePass) Feature() FeatureBit { return p.feature }
func (p *fakePass) MessageTypes() []uint8 { return p.types }
func (p *fakePass) Handle(c CmdBufVersion, m Message) bool {
	p.handled = append(p.handled, m)
	return true
}
func (p *fakePass) EnumerateStorage(out []StorageDescriptor) int { return 0 }
func (p *fakePass) EnumerateDescriptors(out []DescriptorDescriptor) int { return 0 }
func (p *fakePass) EnumeratePushConstants(out []PushConstantDescriptor) int { return 0 }
func (p *fakePass) UpdatePushConstants(c CmdBufVersion, data []byte) int { return 0 }
func (p *fakePass) GenerateReport() []string { return p.reported }
func (p *fakePass) StepReport() map[string]uint64 { return nil }
func (p *fakePass) Flush() {}

func TestRegisterAndHandleDispatchesByType(t *testing.T) {
	r := New()
	bounds := &fakePass{name: "bounds", feature: 0, types: []uint8{1, 2}}
	if err := r.Register(0, bounds); err != nil {
		t.Fatalf("Register: %v", err)
	}

	retained := r.Handle(1, []Message{{Type: 1, Body: 7}, {Type: 2, Body: 9}, {Type: 5, Body: 1}})
	if retained != 2 {
		t.Fatalf("expected 2 retained messages, got %d", retained)
	}
	if len(bounds.handled) != 2 {
		t.Fatalf("expected pass to see 2 messages, got %d", len(bounds.handled))
	}
}

func TestRegisterConflictingMessageType(t *testing.T) {
	r := New()
	a := &fakePass{name: "a", types: []uint8{3}}
	b := &fakePass{name: "b", types: []uint8{3}}
	if err := r.Register(0, a); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := r.Register(1, b); err == nil {
		t.Fatalf("expected error registering conflicting message type")
	}
}

func TestFreezeRejectsLateRegistration(t *testing.T) {
	r := New()
	r.Freeze()
	if err := r.Register(0, &fakePass{name: "late"}); err == nil {
		t.Fatalf("expected ErrLateRegistration")
	}
}

func TestGetHonoursFeatureMask(t *testing.T) {
	r := New()
	p := &fakePass{name: "init", feature: 2}
	if err := r.Register(2, p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := r.Get(0, 2); ok {
		t.Fatalf("expected no pass when feature bit unset")
	}
	if got, ok := r.Get(1<<2, 2); !ok || got != p {
		t.Fatalf("expected pass when feature bit set")
	}
}

func TestAllocUIDExhaustion(t *testing.T) {
	r := New()
	r.heads[MessageUID] = ^uint16(0)
	if _, err := r.AllocUID(MessageUID); err != ErrUIDSpaceExhausted {
		t.Fatalf("expected ErrUIDSpaceExhausted, got %v", err)
	}
}
