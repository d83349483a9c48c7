/*
Copyright 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dimkr/tusk/cfg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loadConfig reads the configuration file, if any, and overrides it with TUSK_ environment
// variables.
func loadConfig(cmd *cobra.Command, path string) (*cfg.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("tusk")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Unmarshal ignores environment variables of keys viper doesn't know about
	for _, f := range reflect.VisibleFields(reflect.TypeFor[cfg.Config]()) {
		if f.Tag.Get("mapstructure") != "-" {
			v.BindEnv(f.Name)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tusk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	for _, name := range []string{"db", "domain", "log-level"} {
		if f := cmd.Flags().Lookup(name); f != nil && !f.Changed && v.IsSet(name) {
			if err := f.Value.Set(v.GetString(name)); err != nil {
				return nil, fmt.Errorf("invalid %s: %w", name, err)
			}
		}
	}

	var c cfg.Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	c.FillDefaults()
	return &c, nil
}
