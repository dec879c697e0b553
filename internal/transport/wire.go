package transport

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"benchml/internal/dataset"
	"benchml/internal/descriptor"
	"benchml/internal/matrix"
)

// ErrBadMessage is returned for requests or replies missing required fields.
var ErrBadMessage = errors.New("malformed descriptor message")

// request is the decoded form of an Evaluate call.
type request struct {
	cfg       descriptor.Config
	structure *dataset.Structure
	centres   [][3]float64
}

func encodeRequest(cfg descriptor.Config, s *dataset.Structure, centres [][3]float64) (*structpb.Struct, error) {
	symbols := make([]any, len(s.Symbols))
	for i, sym := range s.Symbols {
		symbols[i] = sym
	}
	types := make([]any, len(cfg.Types))
	for i, t := range cfg.Types {
		types[i] = t
	}
	return structpb.NewStruct(map[string]any{
		"symbols":   symbols,
		"positions": flatten(s.Positions),
		"centres":   flatten(centres),
		"rcut":      cfg.Rcut,
		"sigma":     cfg.Sigma,
		"nbins":     cfg.NBins,
		"types":     types,
	})
}

func decodeRequest(msg *structpb.Struct) (request, error) {
	m := msg.AsMap()
	var r request
	symbols, err := stringList(m, "symbols")
	if err != nil {
		return r, err
	}
	pos, err := triples(m, "positions")
	if err != nil {
		return r, err
	}
	if len(pos) != len(symbols) {
		return r, fmt.Errorf("%d symbols, %d positions: %w", len(symbols), len(pos), ErrBadMessage)
	}
	if r.centres, err = triples(m, "centres"); err != nil {
		return r, err
	}
	if r.cfg.Types, err = stringList(m, "types"); err != nil {
		return r, err
	}
	r.cfg.Rcut, _ = m["rcut"].(float64)
	r.cfg.Sigma, _ = m["sigma"].(float64)
	nbins, _ := m["nbins"].(float64)
	r.cfg.NBins = int(nbins)
	r.structure = &dataset.Structure{Symbols: symbols, Positions: pos}
	return r, nil
}

func encodeReply(x *matrix.Dense) (*structpb.Struct, error) {
	data := make([]any, len(x.Data()))
	for i, v := range x.Data() {
		data[i] = v
	}
	return structpb.NewStruct(map[string]any{
		"rows": x.Rows(),
		"cols": x.Cols(),
		"data": data,
	})
}

func decodeReply(msg *structpb.Struct) (*matrix.Dense, error) {
	m := msg.AsMap()
	rows, _ := m["rows"].(float64)
	cols, _ := m["cols"].(float64)
	data, err := floats(m, "data")
	if err != nil {
		return nil, err
	}
	return matrix.FromData(int(rows), int(cols), data)
}

func flatten(v [][3]float64) []any {
	out := make([]any, 0, 3*len(v))
	for _, p := range v {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

func floats(m map[string]any, key string) ([]float64, error) {
	raw, ok := m[key].([]any)
	if !ok {
		if _, present := m[key]; !present {
			return nil, nil
		}
		return nil, fmt.Errorf("%s is %T: %w", key, m[key], ErrBadMessage)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is %T: %w", key, i, v, ErrBadMessage)
		}
		out[i] = f
	}
	return out, nil
}

func triples(m map[string]any, key string) ([][3]float64, error) {
	flat, err := floats(m, key)
	if err != nil {
		return nil, err
	}
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%s has %d values: %w", key, len(flat), ErrBadMessage)
	}
	out := make([][3]float64, len(flat)/3)
	for i := range out {
		copy(out[i][:], flat[3*i:3*i+3])
	}
	return out, nil
}

func stringList(m map[string]any, key string) ([]string, error) {
	raw, _ := m[key].([]any)
	out := make([]string, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is %T: %w", key, i, v, ErrBadMessage)
		}
		out[i] = s
	}
	return out, nil
}
