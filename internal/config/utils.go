// Copyright 2025 Stacklok, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config contains the process-wide configuration for hookrelay.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagInst is a function that creates a flag and returns a pointer to the value.
type FlagInst[V any] func(name string, value V, usage string) *V

// BindConfigFlag binds a viper configuration path to a command-line flag,
// registering the flag's default value with viper so that either source may
// supply the final value.
func BindConfigFlag[V any](
	v *viper.Viper,
	flags *pflag.FlagSet,
	viperPath string,
	cmdLineArg string,
	defaultValue V,
	help string,
	binder FlagInst[V],
) error {
	binder(cmdLineArg, defaultValue, help)
	return doViperBind(v, flags, viperPath, cmdLineArg, defaultValue)
}

func doViperBind[V any](
	v *viper.Viper,
	flags *pflag.FlagSet,
	viperPath string,
	cmdLineArg string,
	defaultValue V,
) error {
	v.SetDefault(viperPath, defaultValue)
	if err := v.BindPFlag(viperPath, flags.Lookup(cmdLineArg)); err != nil {
		return fmt.Errorf("failed to bind flag %s to viper path %s: %w", cmdLineArg, viperPath, err)
	}
	return nil
}

// ReadConfigFromViper unmarshals the active viper configuration into CFG.
func ReadConfigFromViper[CFG any](v *viper.Viper) (*CFG, error) {
	var cfg CFG
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetViperStructDefaults recursively sets the viper default value for every
// tagged field in s, so that environment variables and flags can override a
// struct-literal default regardless of which layer set it last.
//
// Per https://github.com/spf13/viper/issues/188#issuecomment-255519149 and
// https://github.com/spf13/viper/issues/761, viper.SetDefault must be called
// per field for env var overrides to work, so the struct tags are walked by
// reflection instead of hand-listing every path twice.
func SetViperStructDefaults(v *viper.Viper, prefix string, s any) {
	structType := reflect.TypeOf(s)

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if unicode.IsLower([]rune(field.Name)[0]) {
			continue
		}
		if field.Tag.Get("mapstructure") == "" {
			panic(fmt.Sprintf("untagged config struct field %q", field.Name))
		}
		valueName := strings.ToLower(prefix + field.Tag.Get("mapstructure"))
		fieldType := field.Type

		value := field.Tag.Get("default")

		if fieldType.Kind() == reflect.Ptr {
			fieldType = fieldType.Elem()
		}

		if fieldType.Kind() == reflect.Struct {
			SetViperStructDefaults(v, valueName+".", reflect.Zero(fieldType).Interface())
			if _, ok := field.Tag.Lookup("default"); ok {
				overrideViperStructDefaults(v, valueName, value)
			}
			continue
		}

		defaultValue := getDefaultValue(field, value, valueName)
		if err := v.BindEnv(strings.ToUpper(valueName)); err != nil {
			panic(fmt.Sprintf("failed to bind %q to env var: %v", valueName, err))
		}
		v.SetDefault(valueName, defaultValue)
	}
}

func overrideViperStructDefaults(v *viper.Viper, prefix string, newDefaults string) {
	overrides := map[string]any{}
	if err := json.Unmarshal([]byte(newDefaults), &overrides); err != nil {
		panic(fmt.Sprintf("failed to parse overrides in %q: %v", prefix, err))
	}
	for key, value := range overrides {
		v.SetDefault(prefix+"."+key, value)
	}
}

func getDefaultValueForInt64(value string) (any, error) {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed, nil
	}
	// fall back to time.Duration literals like "30s"
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed, nil
	}
	return nil, fmt.Errorf("cannot parse %q as int64 or duration", value)
}

//nolint:exhaustive // unhandled kinds fall into the default error branch
func getDefaultValue(field reflect.StructField, value string, valueName string) any {
	defaultValue := reflect.Zero(field.Type).Interface()
	var err error
	switch field.Type.Kind() {
	case reflect.String:
		defaultValue = value
	case reflect.Int64:
		defaultValue, err = getDefaultValueForInt64(value)
	case reflect.Int32, reflect.Int16, reflect.Int8, reflect.Int,
		reflect.Uint64, reflect.Uint32, reflect.Uint16, reflect.Uint8, reflect.Uint:
		defaultValue, err = strconv.Atoi(value)
	case reflect.Float64:
		defaultValue, err = strconv.ParseFloat(value, 64)
	case reflect.Bool:
		defaultValue, err = strconv.ParseBool(value)
	case reflect.Slice, reflect.Map:
		defaultValue = nil
	default:
		err = fmt.Errorf("unhandled type %s", field.Type)
	}
	if err != nil {
		panic(fmt.Sprintf("bad default for field %q (%s): %v", valueName, field.Type, err))
	}
	return defaultValue
}
