package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/telhawk-systems/debughawk/internal/model"
)

// inputOffset is where the envelope is written in plugin memory.
const inputOffset = 0

// memory is the subset of api.Memory the marshalling steps use.
type memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

func writePayload(mem memory, payload []byte) error {
	size := uint64(mem.Size())
	if uint64(inputOffset)+uint64(len(payload)) > size {
		return fmt.Errorf("%w: %d bytes, memory is %d bytes", ErrMemoryWriteOutOfBounds, len(payload), size)
	}
	if !mem.Write(inputOffset, payload) {
		return fmt.Errorf("%w: write of %d bytes rejected", ErrMemoryWriteOutOfBounds, len(payload))
	}
	return nil
}

// readResult copies the bytes from offset up to the first NUL. The scan
// never extends past the end of memory.
func readResult(mem memory, offset uint32) ([]byte, error) {
	size := mem.Size()
	if offset >= size {
		return nil, fmt.Errorf("%w: offset %d, memory is %d bytes", ErrResultOutOfBounds, offset, size)
	}
	view, ok := mem.Read(offset, size-offset)
	if !ok {
		return nil, fmt.Errorf("%w: offset %d", ErrResultOutOfBounds, offset)
	}
	end := bytes.IndexByte(view, 0)
	if end < 0 {
		return nil, fmt.Errorf("%w: scanned %d bytes from offset %d", ErrResultUnterminated, len(view), offset)
	}
	out := make([]byte, end)
	copy(out, view[:end])
	return out, nil
}

// decodeRecord parses a plugin result. An empty content_type means custom.
func decodeRecord(raw []byte) (model.Record, error) {
	if !utf8.Valid(raw) {
		return model.Record{}, ErrInvalidUTF8Result
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return model.Record{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidJSONResult)
	}

	var rec model.Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return model.Record{}, fmt.Errorf("%w: %w", ErrInvalidJSONResult, err)
	}
	if rec.ContentType == "" {
		rec.ContentType = model.ContentCustom
	}
	if !rec.ContentType.Valid() {
		return model.Record{}, fmt.Errorf("%w: unknown content_type %q", ErrInvalidJSONResult, rec.ContentType)
	}
	return rec, nil
}
