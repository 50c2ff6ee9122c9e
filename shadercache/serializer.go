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
	"encoding/base64"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoSerializer is a default Serializer implementation that wire-encodes
// each cache entry as a length-prefixed protobuf Struct, written
// sequentially to one stream. Byte blobs are base64-encoded since
// structpb.Value has no native bytes kind.
type ProtoSerializer struct{}

func blobToStruct(k Key, e *Entry) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
			"feature_version_uid": base64.StdEncoding.EncodeToString(k.FeatureVersionUID[:]),
			"source_create_info": base64.StdEncoding.EncodeToString(k.SourceCreateInfo),
			"source_blob": base64.StdEncoding.EncodeToString(k.SourceBlob),
			"instrumented": base64.StdEncoding.EncodeToString(e.InstrumentedCreateInfo),
	})
}

func structToEntry(s *structpb.Struct) (Key, *Entry, error) {
	decode := func(name string) ([]byte, error) {
		v, ok := s.Fields[name]
		if !ok {
			return nil, errors.Errorf("shadercache: serialized record missing field %q", name)
		}
		return base64.StdEncoding.DecodeString(v.GetStringValue())
	}

	uid, err := decode("feature_version_uid")
	if err != nil {
		return Key{}, nil, err
	}
	sci, err := decode("source_create_info")
	if err != nil {
		return Key{}, nil, err
	}
	blob, err := decode("source_blob")
	if err != nil {
		return Key{}, nil, err
	}
	inst, err := decode("instrumented")
	if err != nil {
		return Key{}, nil, err
	}

	var key Key
	copy(key.FeatureVersionUID[:], uid)
	key.SourceCreateInfo = sci
	key.SourceBlob = blob
	return key, &Entry{InstrumentedCreateInfo: inst}, nil
}

// Serialize writes one length-prefixed protobuf-encoded record to w.
func (ProtoSerializer) Serialize(w io.Writer, key Key, e *Entry) error {
	s, err := blobToStruct(key, e)
	if err != nil {
		return errors.Wrap(err, "shadercache: building record struct")
	}
	buf, err := proto.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "shadercache: marshaling record")
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Deserialize reads one length-prefixed protobuf-encoded record from r,
// returning io.EOF once the stream is exhausted between records.
func (ProtoSerializer) Deserialize(r io.Reader) (Key, *Entry, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Key{}, nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Key{}, nil, errors.Wrap(err, "shadercache: truncated record")
	}
	var s structpb.Struct
	if err := proto.Unmarshal(buf, &s); err != nil {
		return Key{}, nil, errors.Wrap(err, "shadercache: unmarshaling record")
	}
	return structToEntry(&s)
}
