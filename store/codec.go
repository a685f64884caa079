package store

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// itemCodec 字节型后端（boltdb/redis/缓存）的存储项编解码
type itemCodec interface {
	Marshal(item map[string]any) ([]byte, error)
	Unmarshal(data []byte) (map[string]any, error)
}

// newItemCodec 按名称构造编解码器，默认 msgpack
func newItemCodec(name string) (itemCodec, error) {
	switch name {
	case "", "msgpack":
		return &msgpackItemCodec{}, nil
	case "json":
		return &jsonItemCodec{}, nil
	}
	return nil, errors.Errorf("unknown codec %q", name)
}

type msgpackItemCodec struct{}

func (c *msgpackItemCodec) Marshal(item map[string]any) ([]byte, error) {
	return msgpack.Marshal(item)
}

func (c *msgpackItemCodec) Unmarshal(data []byte) (map[string]any, error) {
	var item map[string]any
	if err := msgpack.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return item, nil
}

type jsonItemCodec struct{}

func (c *jsonItemCodec) Marshal(item map[string]any) ([]byte, error) {
	return json.Marshal(item)
}

func (c *jsonItemCodec) Unmarshal(data []byte) (map[string]any, error) {
	var item map[string]any
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return item, nil
}
