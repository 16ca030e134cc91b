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

package mods

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DisabledSuffix marks a mod jar the loader must skip.
const DisabledSuffix = ".disabled"

const (
	fabricMetadataPath = "fabric.mod.json"
	quiltMetadataPath  = "quilt.mod.json"
	forgeMetadataPath  = "META-INF/mods.toml"
)

var versionPattern = regexp.MustCompile(`^[\d][\d.\-_+a-zA-Z]*$`)

// ScanDir inspects every mod jar in dir, enabled and disabled alike. A
// missing dir yields an empty library.
func ScanDir(dir string) ([]*Mod, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read mods directory: %w", err)
	}

	var mods []*Mod
	for _, entry := range entries {
		if entry.IsDir() || !isModFileName(entry.Name()) {
			continue
		}
		mod, err := InspectJar(filepath.Join(dir, entry.Name()))
		if err != nil {
			// A corrupt jar still shows up in the library so the operator
			// can remove it.
			mod = fallbackMod(entry.Name())
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// InspectJar reads one jar's loader metadata, size and content hash.
func InspectJar(path string) (*Mod, error) {
	name := filepath.Base(path)
	mod := fallbackMod(name)

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	mod.SizeBytes = info.Size()

	if sum, err := hashFile(path); err == nil {
		mod.SHA256 = sum
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidModFile, name)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	switch {
	case files[fabricMetadataPath] != nil:
		mod.Loader = LoaderFabric
		parseFabricMetadata(files[fabricMetadataPath], mod)
	case files[quiltMetadataPath] != nil:
		mod.Loader = LoaderQuilt
		parseQuiltMetadata(files[quiltMetadataPath], mod)
	case files[forgeMetadataPath] != nil:
		mod.Loader = LoaderForge
		parseForgeMetadata(files[forgeMetadataPath], mod)
	}
	return mod, nil
}

// fallbackMod derives identity from the file name alone, the way jars
// without loader metadata are handled: "sodium-0.5.8.jar" becomes id
// "sodium", version "0.5.8".
func fallbackMod(fileName string) *Mod {
	base := strings.TrimSuffix(fileName, DisabledSuffix)
	base = strings.TrimSuffix(base, ".jar")

	id, version := base, ""
	if i := strings.LastIndex(base, "-"); i > 0 && versionPattern.MatchString(base[i+1:]) {
		id, version = base[:i], base[i+1:]
	}

	return &Mod{
		ID:        strings.ToLower(id),
		Name:      id,
		Version:   version,
		Loader:    LoaderUnknown,
		FileName:  fileName,
		Enabled:   !strings.HasSuffix(fileName, DisabledSuffix),
		ScannedAt: time.Now(),
	}
}

func isModFileName(name string) bool {
	return strings.HasSuffix(name, ".jar") ||
		strings.HasSuffix(name, ".jar"+DisabledSuffix)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type fabricMetadata struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Authors     []any          `json:"authors"`
	Depends     map[string]any `json:"depends"`
}

func parseFabricMetadata(f *zip.File, mod *Mod) {
	data, err := readZipFile(f)
	if err != nil {
		return
	}
	var meta fabricMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return
	}

	applyIdentity(mod, meta.ID, meta.Name, meta.Version, meta.Description)
	if len(meta.Authors) > 0 {
		switch author := meta.Authors[0].(type) {
		case string:
			mod.Author = author
		case map[string]any:
			if name, ok := author["name"].(string); ok {
				mod.Author = name
			}
		}
	}
	for dep := range meta.Depends {
		mod.Dependencies = append(mod.Dependencies, dep)
	}
}

type quiltMetadata struct {
	QuiltLoader struct {
		ID       string `json:"id"`
		Version  string `json:"version"`
		Metadata struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"metadata"`
	} `json:"quilt_loader"`
}

func parseQuiltMetadata(f *zip.File, mod *Mod) {
	data, err := readZipFile(f)
	if err != nil {
		return
	}
	var meta quiltMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return
	}
	applyIdentity(mod, meta.QuiltLoader.ID, meta.QuiltLoader.Metadata.Name,
		meta.QuiltLoader.Version, meta.QuiltLoader.Metadata.Description)
}

type forgeMetadata struct {
	Mods []struct {
		ModID       string `toml:"modId"`
		Version     string `toml:"version"`
		DisplayName string `toml:"displayName"`
		Description string `toml:"description"`
		Authors     string `toml:"authors"`
	} `toml:"mods"`
	Dependencies map[string][]struct {
		ModID     string `toml:"modId"`
		Mandatory bool   `toml:"mandatory"`
	} `toml:"dependencies"`
}

func parseForgeMetadata(f *zip.File, mod *Mod) {
	data, err := readZipFile(f)
	if err != nil {
		return
	}
	var meta forgeMetadata
	if err := toml.Unmarshal(data, &meta); err != nil || len(meta.Mods) == 0 {
		return
	}

	entry := meta.Mods[0]
	applyIdentity(mod, entry.ModID, entry.DisplayName, entry.Version, entry.Description)
	mod.Author = entry.Authors
	for _, dep := range meta.Dependencies[entry.ModID] {
		if dep.Mandatory {
			mod.Dependencies = append(mod.Dependencies, dep.ModID)
		}
	}
}

func applyIdentity(mod *Mod, id, name, version, description string) {
	if id != "" {
		mod.ID = id
	}
	if name != "" {
		mod.Name = name
	}
	// Forge templates often ship "${file.jarVersion}" unsubstituted; the
	// filename-derived version is better than that.
	if version != "" && !strings.Contains(version, "${") {
		mod.Version = version
	}
	if description != "" {
		mod.Description = strings.TrimSpace(description)
	}
}
