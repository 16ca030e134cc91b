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

// Package properties reads and edits server.properties with typed validation
// for the keys the panel knows about. Unknown keys pass through untouched.
package properties

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrValueInvalid = errors.New("properties: invalid value")

// PropertyType is the value type of a known property.
type PropertyType string

const (
	TypeString PropertyType = "string"
	TypeInt    PropertyType = "int"
	TypeBool   PropertyType = "bool"
	TypeEnum   PropertyType = "enum"
)

// Definition describes one known server.properties key.
type Definition struct {
	Key         string       `json:"key"`
	Type        PropertyType `json:"type"`
	Default     string       `json:"default"`
	Min         int          `json:"min,omitempty"`
	Max         int          `json:"max,omitempty"`
	Choices     []string     `json:"choices,omitempty"`
	Description string       `json:"description"`
}

// Definitions lists the keys the panel edits with typed widgets. The order
// here is the display order.
var Definitions = []Definition{
	{Key: "motd", Type: TypeString, Default: "A Minecraft Server",
		Description: "Message shown in the server list"},
	{Key: "server-port", Type: TypeInt, Default: "25565", Min: 1024, Max: 65535,
		Description: "TCP port the server listens on"},
	{Key: "max-players", Type: TypeInt, Default: "20", Min: 1, Max: 1000,
		Description: "Maximum concurrent players"},
	{Key: "gamemode", Type: TypeEnum, Default: "survival",
		Choices:     []string{"survival", "creative", "adventure", "spectator"},
		Description: "Default game mode for new players"},
	{Key: "difficulty", Type: TypeEnum, Default: "easy",
		Choices:     []string{"peaceful", "easy", "normal", "hard"},
		Description: "World difficulty"},
	{Key: "level-name", Type: TypeString, Default: "world",
		Description: "World directory name"},
	{Key: "level-seed", Type: TypeString, Default: "",
		Description: "World generation seed"},
	{Key: "hardcore", Type: TypeBool, Default: "false",
		Description: "Players are banned on death"},
	{Key: "pvp", Type: TypeBool, Default: "true",
		Description: "Allow players to fight each other"},
	{Key: "online-mode", Type: TypeBool, Default: "true",
		Description: "Verify players against Mojang authentication"},
	{Key: "white-list", Type: TypeBool, Default: "false",
		Description: "Only whitelisted players may join"},
	{Key: "enforce-whitelist", Type: TypeBool, Default: "false",
		Description: "Kick non-whitelisted players on reload"},
	{Key: "view-distance", Type: TypeInt, Default: "10", Min: 3, Max: 32,
		Description: "Chunk radius sent to clients"},
	{Key: "simulation-distance", Type: TypeInt, Default: "10", Min: 3, Max: 32,
		Description: "Chunk radius with active entity ticking"},
	{Key: "spawn-protection", Type: TypeInt, Default: "16", Min: 0, Max: 256,
		Description: "Block radius around spawn that non-ops cannot edit"},
	{Key: "allow-nether", Type: TypeBool, Default: "true",
		Description: "Allow travel to the Nether"},
	{Key: "allow-flight", Type: TypeBool, Default: "false",
		Description: "Allow survival players to fly (anti-cheat)"},
	{Key: "enable-command-block", Type: TypeBool, Default: "false",
		Description: "Enable command blocks"},
	{Key: "spawn-monsters", Type: TypeBool, Default: "true",
		Description: "Spawn hostile mobs"},
}

var definitionsByKey = func() map[string]Definition {
	m := make(map[string]Definition, len(Definitions))
	for _, d := range Definitions {
		m[d.Key] = d
	}
	return m
}()

// LookupDefinition returns the definition for key, if the panel knows it.
func LookupDefinition(key string) (Definition, bool) {
	d, ok := definitionsByKey[key]
	return d, ok
}

// Validate checks value against the definition for key. Unknown keys are
// accepted as opaque strings.
func Validate(key, value string) error {
	def, ok := definitionsByKey[key]
	if !ok {
		return nil
	}

	switch def.Type {
	case TypeInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", ErrValueInvalid, key)
		}
		if n < def.Min || n > def.Max {
			return fmt.Errorf("%w: %s must be between %d and %d",
				ErrValueInvalid, key, def.Min, def.Max)
		}
	case TypeBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: %s must be true or false", ErrValueInvalid, key)
		}
	case TypeEnum:
		for _, choice := range def.Choices {
			if value == choice {
				return nil
			}
		}
		return fmt.Errorf("%w: %s must be one of %v", ErrValueInvalid, key, def.Choices)
	}
	return nil
}
