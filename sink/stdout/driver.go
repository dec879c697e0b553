package stdout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"benchml/sink"
)

type Config struct {
	Pretty bool `yaml:"pretty"`
	// BatchSize flushes after that many records; 0 flushes every record.
	BatchSize int `yaml:"batch_size"`
	// Writer defaults to os.Stdout.
	Writer io.Writer `yaml:"-"`
}

type driver struct {
	cfg Config

	mu      sync.Mutex // guards w+pending
	w       *bufio.Writer
	enc     *json.Encoder
	pending int
	closed  bool
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	out := c.Writer
	if out == nil {
		out = os.Stdout
	}
	d.w = bufio.NewWriter(out)
	d.enc = json.NewEncoder(d.w)
	if c.Pretty {
		d.enc.SetIndent("", "  ")
	}
	return nil
}

func (d *driver) Push(r sink.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil {
		return fmt.Errorf("stdout-sink: not configured")
	}
	if err := d.enc.Encode(r); err != nil {
		return err
	}
	d.pending++
	if d.pending >= d.cfg.BatchSize {
		return d.flushLocked()
	}
	return nil
}

func (d *driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.w == nil {
		return nil
	}
	d.closed = true
	return d.flushLocked()
}

// must be called with d.mu held
func (d *driver) flushLocked() error {
	d.pending = 0
	return d.w.Flush()
}

func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
