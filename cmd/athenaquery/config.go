// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"fmt"
	"os"

	"github.com/athena-adbc/go/adbc/driver/athena"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML configuration file. Options holds raw ADBC
// database options and wins over the named fields.
type fileConfig struct {
	Region         string            `yaml:"region,omitempty"`
	Profile        string            `yaml:"profile,omitempty"`
	OutputLocation string            `yaml:"output_location,omitempty"`
	WorkGroup      string            `yaml:"work_group,omitempty"`
	Catalog        string            `yaml:"catalog,omitempty"`
	Database       string            `yaml:"database,omitempty"`
	Options        map[string]string `yaml:"options,omitempty"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// databaseOptions converts the configuration to ADBC database options,
// leaving out fields that are not set.
func (c *fileConfig) databaseOptions() map[string]string {
	opts := make(map[string]string)
	for key, value := range map[string]string{
		athena.OptionRegion:         c.Region,
		athena.OptionProfile:        c.Profile,
		athena.OptionOutputLocation: c.OutputLocation,
		athena.OptionWorkGroup:      c.WorkGroup,
		athena.OptionCatalog:        c.Catalog,
		athena.OptionDatabase:       c.Database,
	} {
		if value != "" {
			opts[key] = value
		}
	}
	for key, value := range c.Options {
		opts[key] = value
	}
	return opts
}
