// Package json is the JSON codec used across CyPlan. It runs on sonic where
// sonic has a JIT (amd64, arm64) and on encoding/json elsewhere; both follow
// encoding/json semantics, including struct field order.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type codec struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
	valid     func([]byte) bool
	encoder   func(io.Writer) Encoder
	decoder   func(io.Reader) Decoder
}

var active = pick(runtime.GOARCH)

func pick(arch string) codec {
	if arch == "amd64" || arch == "arm64" {
		api := sonic.ConfigStd
		return codec{
			marshal:   api.Marshal,
			unmarshal: api.Unmarshal,
			valid:     api.Valid,
			encoder:   func(w io.Writer) Encoder { return api.NewEncoder(w) },
			decoder:   func(r io.Reader) Decoder { return api.NewDecoder(r) },
		}
	}
	return codec{
		marshal:   stdjson.Marshal,
		unmarshal: stdjson.Unmarshal,
		valid:     stdjson.Valid,
		encoder:   func(w io.Writer) Encoder { return stdjson.NewEncoder(w) },
		decoder:   func(r io.Reader) Decoder { return stdjson.NewDecoder(r) },
	}
}

func Marshal(v any) ([]byte, error) { return active.marshal(v) }

func Unmarshal(data []byte, v any) error { return active.unmarshal(data, v) }

func Valid(data []byte) bool { return active.valid(data) }

func NewEncoder(w io.Writer) Encoder { return active.encoder(w) }

func NewDecoder(r io.Reader) Decoder { return active.decoder(r) }
