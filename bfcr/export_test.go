package bfcr

import "github.com/vmihailenco/msgpack/v5"

func unmarshalRaw(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func marshalRaw(v any) ([]byte, error) { return msgpack.Marshal(v) }
