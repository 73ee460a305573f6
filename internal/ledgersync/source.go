package ledgersync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChanSource adapts a channel. Closing the channel drains the source.
type ChanSource <-chan Batch

// Next returns the next batch from the channel.
func (c ChanSource) Next(ctx context.Context) (Batch, error) {
	select {
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	case b, ok := <-c:
		if !ok {
			return Batch{}, io.EOF
		}
		return b, nil
	}
}

// SliceSource delivers a fixed list of batches.
type SliceSource struct {
	batches []Batch
	next    int
}

// NewSliceSource creates a source over batches.
func NewSliceSource(batches ...Batch) *SliceSource {
	return &SliceSource{batches: batches}
}

// Next returns the next batch or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.next >= len(s.batches) {
		return Batch{}, io.EOF
	}
	b := s.batches[s.next]
	s.next++
	return b, nil
}

// DirSource reads batch files from a directory in file name order. Files
// ending in .yaml, .yml or .json hold one batch each.
//
// With a zero poll interval the source is drained once every file present
// has been delivered. Otherwise it waits for new files.
type DirSource struct {
	dir   string
	poll  time.Duration
	seen  map[string]bool
	queue []string
}

// NewDirSource creates a source over dir.
func NewDirSource(dir string, poll time.Duration) *DirSource {
	return &DirSource{dir: dir, poll: poll, seen: make(map[string]bool)}
}

// Next returns the next unseen batch file.
func (d *DirSource) Next(ctx context.Context) (Batch, error) {
	for {
		if len(d.queue) == 0 {
			if err := d.scan(); err != nil {
				return Batch{}, err
			}
		}
		if len(d.queue) > 0 {
			path := d.queue[0]
			d.queue = d.queue[1:]
			d.seen[path] = true
			return ReadBatchFile(path)
		}
		if d.poll <= 0 {
			return Batch{}, io.EOF
		}
		select {
		case <-ctx.Done():
			return Batch{}, ctx.Err()
		case <-time.After(d.poll):
		}
	}
}

func (d *DirSource) scan() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("scan batch dir: %w", err)
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() || !isBatchFile(e.Name()) {
			continue
		}
		path := filepath.Join(d.dir, e.Name())
		if !d.seen[path] {
			found = append(found, path)
		}
	}
	sort.Strings(found)
	d.queue = found
	return nil
}

func isBatchFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// ReadBatchFile decodes one batch file. The format follows the extension.
func ReadBatchFile(path string) (Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("read batch: %w", err)
	}
	b, err := DecodeBatch(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return Batch{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// DecodeBatch decodes a JSON or YAML batch, rejecting unknown fields.
func DecodeBatch(data []byte, isJSON bool) (Batch, error) {
	var b Batch
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			return Batch{}, fmt.Errorf("decode batch: %w", err)
		}
		return b, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	return b, nil
}
