// Package matrix provides the dense row-major float64 matrix shared by the
// descriptor, kernel and predictor transforms.
package matrix

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidDimensions indicates negative dimensions or a data length mismatch.
	ErrInvalidDimensions = errors.New("matrix: invalid dimensions")
	// ErrRagged indicates rows of different lengths.
	ErrRagged = errors.New("matrix: ragged rows")
	// ErrShapeMismatch indicates operands with incompatible shapes.
	ErrShapeMismatch = errors.New("matrix: shape mismatch")
)

// Dense is a row-major matrix; data holds r*c elements.
// At and Set do not check bounds beyond what the slice access does.
type Dense struct {
	r, c int
	data []float64
}

// NewDense returns an r×c zero matrix. Zero-sized matrices are allowed.
func NewDense(rows, cols int) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("NewDense(%d,%d): %w", rows, cols, ErrInvalidDimensions)
	}
	return &Dense{r: rows, c: cols, data: make([]float64, rows*cols)}, nil
}

// Zeros is NewDense for dimensions already known to be valid.
func Zeros(rows, cols int) *Dense {
	return &Dense{r: rows, c: cols, data: make([]float64, rows*cols)}
}

// FromData wraps data (not copied) as an r×c matrix.
func FromData(rows, cols int, data []float64) (*Dense, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("FromData(%d,%d,len=%d): %w", rows, cols, len(data), ErrInvalidDimensions)
	}
	return &Dense{r: rows, c: cols, data: data}, nil
}

// FromRows copies rows into a new matrix.
func FromRows(rows [][]float64) (*Dense, error) {
	if len(rows) == 0 {
		return Zeros(0, 0), nil
	}
	c := len(rows[0])
	m := Zeros(len(rows), c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), c, ErrRagged)
		}
		copy(m.data[i*c:(i+1)*c], row)
	}
	return m, nil
}

func (m *Dense) Rows() int { return m.r }
func (m *Dense) Cols() int { return m.c }

func (m *Dense) At(i, j int) float64     { return m.data[i*m.c+j] }
func (m *Dense) Set(i, j int, v float64) { m.data[i*m.c+j] = v }

// Row returns a view of row i; writes go through to m.
func (m *Dense) Row(i int) []float64 { return m.data[i*m.c : (i+1)*m.c] }

// Data returns the backing slice.
func (m *Dense) Data() []float64 { return m.data }

func (m *Dense) Clone() *Dense {
	d := make([]float64, len(m.data))
	copy(d, m.data)
	return &Dense{r: m.r, c: m.c, data: d}
}

// T returns the transpose as a new matrix.
func (m *Dense) T() *Dense {
	out := Zeros(m.c, m.r)
	for i := 0; i < m.r; i++ {
		for j := 0; j < m.c; j++ {
			out.data[j*m.r+i] = m.data[i*m.c+j]
		}
	}
	return out
}

// SelectRows returns the rows listed in idx, in that order.
func (m *Dense) SelectRows(idx []int) *Dense {
	out := Zeros(len(idx), m.c)
	for k, i := range idx {
		copy(out.data[k*m.c:(k+1)*m.c], m.Row(i))
	}
	return out
}

// Select returns the sub-matrix rows×cols.
func (m *Dense) Select(rows, cols []int) *Dense {
	out := Zeros(len(rows), len(cols))
	for a, i := range rows {
		for b, j := range cols {
			out.data[a*len(cols)+b] = m.data[i*m.c+j]
		}
	}
	return out
}

// IsSymmetric reports exact symmetry.
func (m *Dense) IsSymmetric() bool {
	if m.r != m.c {
		return false
	}
	for i := 0; i < m.r; i++ {
		for j := i + 1; j < m.c; j++ {
			if m.At(i, j) != m.At(j, i) {
				return false
			}
		}
	}
	return true
}

func (m *Dense) String() string {
	var sb strings.Builder
	for i := 0; i < m.r; i++ {
		sb.WriteString("[")
		for j := 0; j < m.c; j++ {
			if j > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%g", m.At(i, j))
		}
		sb.WriteString("]\n")
	}
	return sb.String()
}

// Mul returns a·b.
func Mul(a, b *Dense) (*Dense, error) {
	if a.c != b.r {
		return nil, fmt.Errorf("Mul %dx%d · %dx%d: %w", a.r, a.c, b.r, b.c, ErrShapeMismatch)
	}
	out := Zeros(a.r, b.c)
	for i := 0; i < a.r; i++ {
		for k := 0; k < a.c; k++ {
			aik := a.data[i*a.c+k]
			if aik == 0 {
				continue
			}
			brow := b.data[k*b.c : (k+1)*b.c]
			orow := out.data[i*b.c : (i+1)*b.c]
			for j, v := range brow {
				orow[j] += aik * v
			}
		}
	}
	return out, nil
}

// MulT returns a·bᵀ, the pairwise row dot products of a and b.
func MulT(a, b *Dense) (*Dense, error) {
	if a.c != b.c {
		return nil, fmt.Errorf("MulT %dx%d · (%dx%d)ᵀ: %w", a.r, a.c, b.r, b.c, ErrShapeMismatch)
	}
	out := Zeros(a.r, b.r)
	for i := 0; i < a.r; i++ {
		ai := a.Row(i)
		for j := 0; j < b.r; j++ {
			out.data[i*b.r+j] = Dot(ai, b.Row(j))
		}
	}
	return out, nil
}

// HStack concatenates matrices with equal row counts column-wise.
func HStack(ms ...*Dense) (*Dense, error) {
	if len(ms) == 0 {
		return Zeros(0, 0), nil
	}
	r, c := ms[0].r, 0
	for _, m := range ms {
		if m.r != r {
			return nil, fmt.Errorf("HStack rows %d vs %d: %w", m.r, r, ErrShapeMismatch)
		}
		c += m.c
	}
	out := Zeros(r, c)
	for i := 0; i < r; i++ {
		off := i * c
		for _, m := range ms {
			copy(out.data[off:off+m.c], m.Row(i))
			off += m.c
		}
	}
	return out, nil
}

// SumRows returns the column sums of m (reduction over axis 0).
func SumRows(m *Dense) []float64 {
	out := make([]float64, m.c)
	for i := 0; i < m.r; i++ {
		for j, v := range m.Row(i) {
			out[j] += v
		}
	}
	return out
}

func Dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Normalize scales x in place to unit L2 norm. Zero vectors are left as is.
func Normalize(x []float64) {
	n := math.Sqrt(Dot(x, x))
	if n == 0 {
		return
	}
	for i := range x {
		x[i] /= n
	}
}

// AllClose reports |a-b| <= atol + rtol*|b| element-wise.
func AllClose(a, b *Dense, rtol, atol float64) bool {
	if a.r != b.r || a.c != b.c {
		return false
	}
	for i, v := range a.data {
		if math.Abs(v-b.data[i]) > atol+rtol*math.Abs(b.data[i]) {
			return false
		}
	}
	return true
}

type wire struct {
	R, C int
	Data []float64
}

func (m *Dense) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire{m.r, m.c, m.data}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Dense) GobDecode(b []byte) error {
	var w wire
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return err
	}
	if len(w.Data) != w.R*w.C {
		return ErrInvalidDimensions
	}
	m.r, m.c, m.data = w.R, w.C, w.Data
	if m.data == nil {
		m.data = []float64{}
	}
	return nil
}

func (m *Dense) MarshalJSON() ([]byte, error) {
	rows := make([][]float64, m.r)
	for i := range rows {
		rows[i] = m.Row(i)
	}
	return json.Marshal(rows)
}

func (m *Dense) UnmarshalJSON(b []byte) error {
	var rows [][]float64
	if err := json.Unmarshal(b, &rows); err != nil {
		return err
	}
	d, err := FromRows(rows)
	if err != nil {
		return err
	}
	*m = *d
	return nil
}
