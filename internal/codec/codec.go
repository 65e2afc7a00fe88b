// Package codec serializes mementos for the object store. Every codec writes
// the same field names, so a snapshot can be re-encoded with another codec
// without loss.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"brooklyn/pkg/memento"
)

// Codec encodes and decodes single mementos.
type Codec interface {
	Name() string
	Encode(m memento.Memento) ([]byte, error)
	Decode(t memento.ObjectType, data []byte) (memento.Memento, error)
	// DecodeHeader reads only the identity and parent of a serialized memento.
	DecodeHeader(data []byte) (Header, error)
	// EncodeIDs and DecodeIDs serialize an ordered id list.
	EncodeIDs(ids []string) ([]byte, error)
	DecodeIDs(data []byte) ([]string, error)
}

const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case NameJSON, "":
		return JSON{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %s", name)
	}
}

type marshalFuncs struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

func (f marshalFuncs) encode(m memento.Memento) ([]byte, error) {
	dto, err := toDTO(m)
	if err != nil {
		return nil, err
	}
	b, err := f.marshal(dto)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", m.ObjectType(), m.ID(), err)
	}
	return b, nil
}

func (f marshalFuncs) decode(t memento.ObjectType, data []byte) (memento.Memento, error) {
	dto, err := newDTO(t)
	if err != nil {
		return nil, err
	}
	if err := f.unmarshal(data, dto); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return fromDTO(t, dto)
}

func (f marshalFuncs) header(data []byte) (Header, error) {
	var h Header
	if err := f.unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func (f marshalFuncs) encodeIDs(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := f.marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode ids: %w", err)
	}
	return b, nil
}

func (f marshalFuncs) decodeIDs(data []byte) ([]string, error) {
	var ids []string
	if err := f.unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	return ids, nil
}

// JSON is the default, human readable codec.
type JSON struct{}

// Numbers in decoded values come back as int64 when integral and float64
// otherwise, matching what the msgpack codec yields.
var jsonFuncs = marshalFuncs{
	marshal: func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
	unmarshal: func(data []byte, v any) error {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(v); err != nil {
			return err
		}
		normalizeNumbers(v)
		return nil
	},
}

func (JSON) Name() string { return NameJSON }

func (JSON) Encode(m memento.Memento) ([]byte, error) { return jsonFuncs.encode(m) }

func (JSON) Decode(t memento.ObjectType, data []byte) (memento.Memento, error) {
	return jsonFuncs.decode(t, data)
}

func (JSON) DecodeHeader(data []byte) (Header, error) { return jsonFuncs.header(data) }

func (JSON) EncodeIDs(ids []string) ([]byte, error) { return jsonFuncs.encodeIDs(ids) }

func (JSON) DecodeIDs(data []byte) ([]string, error) { return jsonFuncs.decodeIDs(data) }

// Msgpack is a compact binary codec. It reuses the json field names.
type Msgpack struct{}

var msgpackFuncs = marshalFuncs{
	marshal: func(v any) ([]byte, error) {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		enc.SetSortMapKeys(true)
		enc.UseCompactInts(true)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	},
	unmarshal: func(data []byte, v any) error {
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		dec.UseLooseInterfaceDecoding(true)
		return dec.Decode(v)
	},
}

func (Msgpack) Name() string { return NameMsgpack }

func (Msgpack) Encode(m memento.Memento) ([]byte, error) { return msgpackFuncs.encode(m) }

func (Msgpack) Decode(t memento.ObjectType, data []byte) (memento.Memento, error) {
	return msgpackFuncs.decode(t, data)
}

func (Msgpack) DecodeHeader(data []byte) (Header, error) { return msgpackFuncs.header(data) }

func (Msgpack) EncodeIDs(ids []string) ([]byte, error) { return msgpackFuncs.encodeIDs(ids) }

func (Msgpack) DecodeIDs(data []byte) ([]string, error) { return msgpackFuncs.decodeIDs(data) }
