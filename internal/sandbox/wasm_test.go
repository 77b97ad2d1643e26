package sandbox

// A minimal WebAssembly binary encoder, enough to build plugin fixtures for
// the host tests without an external toolchain.

const (
	i32 = 0x7f

	opUnreachable = 0x00
	opLoop        = 0x03
	opBr          = 0x0c
	opEnd         = 0x0b
	opLocalGet    = 0x20
	opI32Store8   = 0x3a
	opI32Const    = 0x41
	opI32Add      = 0x6a
	blockEmpty    = 0x40
)

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func wasmName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func section(id byte, payload []byte) []byte {
	out := append([]byte{id}, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

func i32Const(v int32) []byte {
	return append([]byte{opI32Const}, sleb(int64(v))...)
}

type segment struct {
	offset int32
	data   []byte
}

// wasmModule describes a single-function plugin.
type wasmModule struct {
	params   []byte
	results  []byte
	body     []byte
	export   string
	noMemory bool
	// minPages is the declared memory minimum, default 1.
	minPages uint32
	// importNow adds an unsatisfiable import env.now.
	importNow bool
	data      []segment
}

func (m wasmModule) build() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	sig := []byte{0x60}
	sig = append(sig, vec(bytesOf(m.params)...)...)
	sig = append(sig, vec(bytesOf(m.results)...)...)
	out = append(out, section(1, vec(sig))...)

	funcIdx := uint64(0)
	if m.importNow {
		imp := append(wasmName("env"), wasmName("now")...)
		imp = append(imp, 0x00, 0x00)
		out = append(out, section(2, vec(imp))...)
		funcIdx = 1
	}

	out = append(out, section(3, vec([]byte{0x00}))...)

	if !m.noMemory {
		minPages := m.minPages
		if minPages == 0 {
			minPages = 1
		}
		out = append(out, section(5, vec(append([]byte{0x00}, uleb(uint64(minPages))...)))...)
	}

	export := m.export
	if export == "" {
		export = ExportProcess
	}
	exports := [][]byte{append(append(wasmName(export), 0x00), uleb(funcIdx)...)}
	if !m.noMemory {
		exports = append(exports, append(wasmName(ExportMemory), 0x02, 0x00))
	}
	out = append(out, section(7, vec(exports...))...)

	body := append([]byte{0x00}, m.body...)
	body = append(body, opEnd)
	out = append(out, section(10, vec(append(uleb(uint64(len(body))), body...)))...)

	if len(m.data) > 0 {
		segs := make([][]byte, 0, len(m.data))
		for _, s := range m.data {
			seg := []byte{0x00}
			seg = append(seg, i32Const(s.offset)...)
			seg = append(seg, opEnd)
			seg = append(seg, uleb(uint64(len(s.data)))...)
			seg = append(seg, s.data...)
			segs = append(segs, seg)
		}
		out = append(out, section(11, vec(segs...))...)
	}
	return out
}

func bytesOf(b []byte) [][]byte {
	out := make([][]byte, len(b))
	for i := range b {
		out[i] = []byte{b[i]}
	}
	return out
}

// echoModule writes a NUL after the input and returns the input offset, so
// the result is the envelope itself.
func echoModule() wasmModule {
	return wasmModule{
		params:  []byte{i32, i32},
		results: []byte{i32},
		body: []byte{
			opLocalGet, 0x00,
			opLocalGet, 0x01,
			opI32Add,
			opI32Const, 0x00,
			opI32Store8, 0x00, 0x00,
			opLocalGet, 0x00,
		},
	}
}

// constModule returns offset and optionally places data there.
func constModule(offset int32, data []byte) wasmModule {
	m := wasmModule{
		params:  []byte{i32, i32},
		results: []byte{i32},
		body:    i32Const(offset),
	}
	if data != nil {
		m.data = []segment{{offset: offset, data: data}}
	}
	return m
}

// resultModule returns a NUL-terminated copy of result placed at 1024.
func resultModule(result string) wasmModule {
	return constModule(1024, append([]byte(result), 0x00))
}
