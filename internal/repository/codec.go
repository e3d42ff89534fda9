package repository

import (
	"bytes"
	"fmt"

	"github.com/flybeeper/taskengine/pkg/pool"
	"github.com/vmihailenco/msgpack/v5"
)

// Значения хранятся в msgpack. Имена полей берутся из json тегов, чтобы
// типы без msgpack тегов кодировались так же, как в API.
const structTag = "json"

func encode(v interface{}) ([]byte, error) {
	b := pool.ByteSlices.Get()
	defer pool.ByteSlices.Put(b)

	buf := bytes.NewBuffer(*b)
	enc := msgpack.NewEncoder(buf)
	enc.SetCustomStructTag(structTag)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	*b = buf.Bytes()[:0]
	return out, nil
}

func decode(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag(structTag)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}
