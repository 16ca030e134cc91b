/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package properties

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

type lineKind int

const (
	kindPair lineKind = iota
	kindComment
	kindBlank
)

type line struct {
	kind  lineKind
	key   string
	value string
	raw   string
}

// File is an ordered server.properties document. Comments, blank lines and
// unknown keys survive a read/modify/write cycle untouched.
type File struct {
	lines []line
	index map[string]int
}

// Parse reads a properties document from r.
func Parse(r io.Reader) (*File, error) {
	f := &File{index: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		switch {
		case trimmed == "":
			f.lines = append(f.lines, line{kind: kindBlank, raw: raw})
		case strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!"):
			f.lines = append(f.lines, line{kind: kindComment, raw: raw})
		default:
			key, value, found := strings.Cut(trimmed, "=")
			if !found {
				// Keyless lines are preserved verbatim, like comments.
				f.lines = append(f.lines, line{kind: kindComment, raw: raw})
				continue
			}
			key = strings.TrimSpace(key)
			f.index[key] = len(f.lines)
			f.lines = append(f.lines, line{kind: kindPair, key: key, value: value})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("properties: read: %w", err)
	}
	return f, nil
}

// ParseFile reads path. A missing file yields an empty document so a fresh
// server directory can still be configured.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{index: make(map[string]int)}, nil
		}
		return nil, fmt.Errorf("properties: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Get returns the value for key and whether it exists.
func (f *File) Get(key string) (string, bool) {
	idx, ok := f.index[key]
	if !ok {
		return "", false
	}
	return f.lines[idx].value, true
}

// Set updates key in place or appends it at the end.
func (f *File) Set(key, value string) {
	if idx, ok := f.index[key]; ok {
		f.lines[idx].value = value
		return
	}
	f.index[key] = len(f.lines)
	f.lines = append(f.lines, line{kind: kindPair, key: key, value: value})
}

// Map returns all key/value pairs.
func (f *File) Map() map[string]string {
	m := make(map[string]string, len(f.index))
	for key, idx := range f.index {
		m[key] = f.lines[idx].value
	}
	return m
}

// Keys returns all keys in document order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.index))
	for _, l := range f.lines {
		if l.kind == kindPair {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// Write renders the document to w in its original order.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, l := range f.lines {
		var err error
		if l.kind == kindPair {
			_, err = fmt.Fprintf(bw, "%s=%s\n", l.key, l.value)
		} else {
			_, err = fmt.Fprintln(bw, l.raw)
		}
		if err != nil {
			return fmt.Errorf("properties: write: %w", err)
		}
	}
	return bw.Flush()
}

// SaveFile writes the document to path atomically.
func (f *File) SaveFile(path string) error {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("properties: create %s: %w", tmp, err)
	}

	if err := f.Write(out); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
