package npyio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var magic = []byte("\x93NUMPY")

// header alignment required by the format; the dict is space-padded so the
// payload starts on a 64-byte boundary.
const headerAlign = 64

const (
	descrFloat32 = "<f4"
	descrInt32   = "<i4"
)

// ReadFloat32 reads a little-endian float32 array and returns the flat
// C-order payload with its shape.
func ReadFloat32(r io.Reader) ([]float32, []int, error) {
	shape, n, err := readHeader(r, descrFloat32)
	if err != nil {
		return nil, nil, err
	}
	data := make([]float32, n)
	if err := binary.Read(bufio.NewReader(r), binary.LittleEndian, data); err != nil {
		return nil, nil, fmt.Errorf("npy: payload: %w", err)
	}
	return data, shape, nil
}

// ReadInt32 reads a little-endian int32 array and returns the flat C-order
// payload with its shape.
func ReadInt32(r io.Reader) ([]int32, []int, error) {
	shape, n, err := readHeader(r, descrInt32)
	if err != nil {
		return nil, nil, err
	}
	data := make([]int32, n)
	if err := binary.Read(bufio.NewReader(r), binary.LittleEndian, data); err != nil {
		return nil, nil, fmt.Errorf("npy: payload: %w", err)
	}
	return data, shape, nil
}

// WriteFloat32 writes data as a version 1.0 float32 array of the given
// shape.
func WriteFloat32(w io.Writer, data []float32, shape []int) error {
	if err := checkSize(len(data), shape); err != nil {
		return err
	}
	if err := writeHeader(w, descrFloat32, shape); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

// WriteInt32 writes data as a version 1.0 int32 array of the given shape.
func WriteInt32(w io.Writer, data []int32, shape []int) error {
	if err := checkSize(len(data), shape); err != nil {
		return err
	}
	if err := writeHeader(w, descrInt32, shape); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

func checkSize(n int, shape []int) error {
	want := 1
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("npy: non-positive dimension %d", d)
		}
		want *= d
	}
	if n != want {
		return fmt.Errorf("npy: %d elements do not fill shape %v", n, shape)
	}
	return nil
}

// readHeader validates magic, version and dtype, and returns the declared
// shape plus element count.
func readHeader(r io.Reader, wantDescr string) ([]int, int, error) {
	pre := make([]byte, len(magic)+2+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, 0, fmt.Errorf("npy: preamble: %w", err)
	}
	if !bytes.Equal(pre[:len(magic)], magic) {
		return nil, 0, fmt.Errorf("npy: bad magic %q", pre[:len(magic)])
	}
	major, minor := pre[len(magic)], pre[len(magic)+1]
	if major != 1 || minor != 0 {
		return nil, 0, fmt.Errorf("npy: unsupported version %d.%d", major, minor)
	}
	hlen := binary.LittleEndian.Uint16(pre[len(magic)+2:])
	hdr := make([]byte, hlen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, 0, fmt.Errorf("npy: header: %w", err)
	}

	dict := string(hdr)
	descr, err := dictString(dict, "descr")
	if err != nil {
		return nil, 0, err
	}
	if descr != wantDescr {
		return nil, 0, fmt.Errorf("npy: dtype %q, want %q", descr, wantDescr)
	}
	if fortran, err := dictBool(dict, "fortran_order"); err != nil {
		return nil, 0, err
	} else if fortran {
		return nil, 0, fmt.Errorf("npy: fortran order is not supported")
	}
	shape, err := dictShape(dict)
	if err != nil {
		return nil, 0, err
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return shape, n, nil
}

func writeHeader(w io.Writer, descr string, shape []int) error {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	tuple := strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, tuple)

	// Pad with spaces so preamble+header is a multiple of 64, newline last.
	total := len(magic) + 2 + 2 + len(dict) + 1
	pad := (headerAlign - total%headerAlign) % headerAlign
	dict += strings.Repeat(" ", pad) + "\n"
	if len(dict) > int(^uint16(0)) {
		return fmt.Errorf("npy: header too large")
	}

	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(1)
	buf.WriteByte(0)
	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(dict)))
	buf.Write(hlen[:])
	buf.WriteString(dict)
	_, err := w.Write(buf.Bytes())
	return err
}

// dictString pulls a quoted value out of the header dict. The header is
// machine-generated with single quotes, so a full python parser is not
// needed.
func dictString(dict, key string) (string, error) {
	rest, err := dictValue(dict, key)
	if err != nil {
		return "", err
	}
	if len(rest) < 2 || rest[0] != '\'' {
		return "", fmt.Errorf("npy: malformed %s value", key)
	}
	end := strings.IndexByte(rest[1:], '\'')
	if end < 0 {
		return "", fmt.Errorf("npy: malformed %s value", key)
	}
	return rest[1 : 1+end], nil
}

func dictBool(dict, key string) (bool, error) {
	rest, err := dictValue(dict, key)
	if err != nil {
		return false, err
	}
	switch {
	case strings.HasPrefix(rest, "True"):
		return true, nil
	case strings.HasPrefix(rest, "False"):
		return false, nil
	}
	return false, fmt.Errorf("npy: malformed %s value", key)
}

func dictShape(dict string) ([]int, error) {
	rest, err := dictValue(dict, "shape")
	if err != nil {
		return nil, err
	}
	if rest == "" || rest[0] != '(' {
		return nil, fmt.Errorf("npy: malformed shape value")
	}
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return nil, fmt.Errorf("npy: malformed shape value")
	}
	var shape []int
	for _, tok := range strings.Split(rest[1:end], ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		d, err := strconv.Atoi(tok)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("npy: bad dimension %q", tok)
		}
		shape = append(shape, d)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("npy: scalar arrays are not supported")
	}
	return shape, nil
}

func dictValue(dict, key string) (string, error) {
	needle := "'" + key + "':"
	i := strings.Index(dict, needle)
	if i < 0 {
		return "", fmt.Errorf("npy: header missing %s", key)
	}
	return strings.TrimLeft(dict[i+len(needle):], " "), nil
}
