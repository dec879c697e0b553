package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrUnknownConverter = errors.New("unknown target converter")
	ErrMissingTarget    = errors.New("structure lacks target value")
	ErrBadMeta          = errors.New("bad meta.json")
)

// MetaFile names the descriptor file of a benchmark directory.
const MetaFile = "meta.json"

// Converter maps raw target values onto the scale models are trained on.
type Converter func(float64) float64

var converters = map[string]Converter{
	"":      func(y float64) float64 { return y },
	"log":   math.Log,
	"log10": math.Log10,
	"plog":  func(y float64) float64 { return -math.Log10(y) },
}

// Convert returns the named target converter.
func Convert(name string) (Converter, error) {
	c, ok := converters[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownConverter)
	}
	return c, nil
}

// Dataset is one labelled sample set together with its metadata.
type Dataset struct {
	meta       map[string]any
	structures []*Structure
	y          []float64
}

// New builds a dataset over structures. meta is copied; its "convert" key is
// consumed and removed from the copy. When meta names a "target", y is read
// from every structure's info and converted.
func New(structures []*Structure, meta map[string]any) (*Dataset, error) {
	m := copyMeta(meta)
	name, _ := m["convert"].(string)
	delete(m, "convert")
	conv, err := Convert(name)
	if err != nil {
		return nil, err
	}
	d := &Dataset{meta: m, structures: structures}
	target, ok := m["target"].(string)
	if !ok {
		return d, nil
	}
	d.y = make([]float64, len(structures))
	for i, s := range structures {
		v, ok := number(s.Info[target])
		if !ok {
			return nil, fmt.Errorf("structure %d: %q: %w", i, target, ErrMissingTarget)
		}
		d.y[i] = conv(v)
	}
	return d, nil
}

func (d *Dataset) Len() int                 { return len(d.structures) }
func (d *Dataset) At(i int) *Structure      { return d.structures[i] }
func (d *Dataset) Structures() []*Structure { return d.structures }

// Y returns the converted targets, nil when the dataset has no target.
func (d *Dataset) Y() []float64 { return d.y }

// Meta looks up one metadata key.
func (d *Dataset) Meta(key string) (any, bool) {
	v, ok := d.meta[key]
	return v, ok
}

// MetaMap returns a copy of the metadata.
func (d *Dataset) MetaMap() map[string]any { return copyMeta(d.meta) }

func (d *Dataset) Name() string {
	s, _ := d.meta["name"].(string)
	return s
}

// Subset returns a dataset over the samples in idx sharing this metadata.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{meta: d.meta, structures: make([]*Structure, len(idx))}
	if d.y != nil {
		out.y = make([]float64, len(idx))
	}
	for k, i := range idx {
		out.structures[k] = d.structures[i]
		if d.y != nil {
			out.y[k] = d.y[i]
		}
	}
	return out
}

// Metrics lists the score names requested by the metadata.
func (d *Dataset) Metrics() []string {
	var out []string
	switch v := d.meta["metrics"].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// Info is a one-line summary: name, size, task, metrics and std of y.
func (d *Dataset) Info() string {
	task, _ := d.meta["task"].(string)
	return fmt.Sprintf("%-50s  #configs=%-5d  task=%-8s  metrics=%s   std=%1.2e",
		d.Name(), d.Len(), task, strings.Join(d.Metrics(), ","), std(d.y))
}

func (d *Dataset) String() string { return d.Info() }

// Discover walks root for meta.json files and expands every
// targets × datasets combination into one Dataset, named
// "<name>:<target>:<dataset>". Datasets rejected by filter are not read.
func Discover(root string, filter *Filter) ([]*Dataset, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.IsDir() && e.Name() == MetaFile {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)

	var out []*Dataset
	for _, dir := range dirs {
		ds, err := expand(dir, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	return out, nil
}

func expand(dir string, filter *Filter) ([]*Dataset, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", dir, ErrBadMeta, err)
	}
	targets, ok := meta["targets"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: targets: %w", dir, ErrBadMeta)
	}
	files, ok := meta["datasets"].([]any)
	if !ok {
		return nil, fmt.Errorf("%s: datasets: %w", dir, ErrBadMeta)
	}
	names := make([]string, 0, len(targets))
	for k := range targets {
		names = append(names, k)
	}
	sort.Strings(names)

	var out []*Dataset
	for _, target := range names {
		for _, f := range files {
			file, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("%s: dataset entry %v: %w", dir, f, ErrBadMeta)
			}
			m := copyMeta(meta)
			delete(m, "datasets")
			m["name"] = fmt.Sprintf("%v:%s:%s", meta["name"], target, file)
			m["target"] = target
			if info, ok := targets[target].(map[string]any); ok {
				for k, v := range info {
					m[k] = v
				}
			}
			if filter != nil {
				keep, err := filter.Match(m)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", m["name"], err)
				}
				if !keep {
					continue
				}
			}
			structs, err := ReadXYZFile(filepath.Join(dir, file))
			if err != nil {
				return nil, err
			}
			d, err := New(structs, m)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", m["name"], err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func copyMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMeta(x)
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = deepCopy(e)
		}
		return s
	default:
		return v
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func std(y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var s float64
	for _, v := range y {
		s += (v - mean) * (v - mean)
	}
	return math.Sqrt(s / float64(len(y)))
}
