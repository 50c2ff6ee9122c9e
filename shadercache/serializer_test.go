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

package shadercache

import (
	"bytes"
	"testing"

	"github.com/gapid-shaderlayer/gpuav/internal/id"
)

func TestProtoSerializerRoundTrip(t *testing.T) {
	var s ProtoSerializer
	key := Key{
		FeatureVersionUID: id.Of([]byte("feature-v1")),
		SourceCreateInfo: []byte("create-info"),
		SourceBlob: []byte("spir-v bytes"),
	}
	entry := &Entry{InstrumentedCreateInfo: []byte("instrumented bytes")}

	var buf bytes.Buffer
	if err := s.Serialize(&buf, key, entry); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	gotKey, gotEntry, err := s.Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if gotKey.FeatureVersionUID != key.FeatureVersionUID {
		t.Fatalf("FeatureVersionUID = %v, want %v", gotKey.FeatureVersionUID, key.FeatureVersionUID)
	}
	if string(gotKey.SourceCreateInfo) != string(key.SourceCreateInfo) {
		t.Fatalf("SourceCreateInfo = %q, want %q", gotKey.SourceCreateInfo, key.SourceCreateInfo)
	}
	if string(gotKey.SourceBlob) != string(key.SourceBlob) {
		t.Fatalf("SourceBlob = %q, want %q", gotKey.SourceBlob, key.SourceBlob)
	}
	if string(gotEntry.InstrumentedCreateInfo) != string(entry.InstrumentedCreateInfo) {
		t.Fatalf("InstrumentedCreateInfo = %q, want %q", gotEntry.InstrumentedCreateInfo, entry.InstrumentedCreateInfo)
	}
}

func TestProtoSerializerEOFAtStreamEnd(t *testing.T) {
	var s ProtoSerializer
	var buf bytes.Buffer
	if _, _, err := s.Deserialize(&buf); err == nil {
		t.Fatalf("Deserialize on empty stream should report an error (EOF)")
	}
}
