package npz

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// npyArray is a decoded NumPy array: C-order float64 data plus its shape.
type npyArray struct {
	shape []int
	data  []float64
}

var npyMagic = []byte("\x93NUMPY")

// readNpy decodes a .npy member. Little-endian float32/float64 arrays in C
// order are supported; that covers what the preprocessor writes.
func readNpy(r io.Reader) (*npyArray, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("reading npy preamble: %w", err)
	}
	if string(head[:6]) != string(npyMagic) {
		return nil, fmt.Errorf("bad npy magic %q", head[:6])
	}

	major := head[6]
	var headerLen int
	switch major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("reading npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("reading npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("unsupported npy version %d.%d", head[6], head[7])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading npy header: %w", err)
	}

	descr, fortran, shape, err := parseNpyHeader(string(header))
	if err != nil {
		return nil, err
	}
	if fortran {
		return nil, fmt.Errorf("fortran-order npy arrays are not supported")
	}

	var itemSize int
	switch descr {
	case "<f8":
		itemSize = 8
	case "<f4":
		itemSize = 4
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", descr)
	}

	count := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("invalid npy shape %v", shape)
		}
		count *= d
	}

	raw := make([]byte, count*itemSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading npy data (%d elements): %w", count, err)
	}

	data := make([]float64, count)
	switch itemSize {
	case 8:
		for i := range data {
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	case 4:
		for i := range data {
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	}

	return &npyArray{shape: shape, data: data}, nil
}

// parseNpyHeader pulls descr, fortran_order, and shape out of the Python
// dict literal that heads every .npy member.
func parseNpyHeader(header string) (descr string, fortran bool, shape []int, err error) {
	descr, err = npyHeaderField(header, "descr")
	if err != nil {
		return "", false, nil, err
	}

	order, err := npyHeaderField(header, "fortran_order")
	if err != nil {
		return "", false, nil, err
	}
	fortran = strings.HasPrefix(order, "True")

	lparen := strings.Index(header, "(")
	rparen := strings.Index(header, ")")
	if lparen < 0 || rparen < lparen {
		return "", false, nil, fmt.Errorf("npy header missing shape tuple: %q", header)
	}
	for _, part := range strings.Split(header[lparen+1:rparen], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, convErr := strconv.Atoi(part)
		if convErr != nil {
			return "", false, nil, fmt.Errorf("bad npy shape element %q: %w", part, convErr)
		}
		shape = append(shape, d)
	}
	if len(shape) == 0 {
		// A 0-d array; treat as a single scalar.
		shape = []int{1}
	}

	return descr, fortran, shape, nil
}

// npyHeaderField extracts the value following "'key':", stripping quotes.
func npyHeaderField(header, key string) (string, error) {
	marker := "'" + key + "':"
	i := strings.Index(header, marker)
	if i < 0 {
		return "", fmt.Errorf("npy header missing %q: %q", key, header)
	}
	rest := strings.TrimSpace(header[i+len(marker):])
	rest = strings.TrimPrefix(rest, "'")
	for j, c := range rest {
		if c == '\'' || c == ',' || c == '}' {
			return rest[:j], nil
		}
	}
	return rest, nil
}
