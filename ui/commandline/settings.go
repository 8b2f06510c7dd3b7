// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gomlx/tracejit/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// config must be a pointer to a struct: each parameter is matched to the field with the same `toml` tag
// (or, without a tag, the lower-cased field name). The type of the field defines how the value is parsed.
//
// An entry "file:<path>" decodes the TOML file at path into config.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// It returns the names of the parameters set, in order, or an error if a parameter is unknown or
// its value can't be parsed.
//
// Example usage:
//
//	cfg := DefaultConfig()
//	paramsSet, err := commandline.ParseSettings("calls=1_000;dims=64,64;file:~/bench.toml", &cfg)
func ParseSettings(settings string, config any) (paramsSet []string, err error) {
	configV := reflect.ValueOf(config)
	if configV.Kind() != reflect.Pointer || configV.Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("ParseSettings requires a pointer to a struct, got %T", config)
	}
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseSetting(configV.Elem(), config, strings.TrimSpace(setting), paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseSetting(configV reflect.Value, config any, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		var filePath string
		filePath, err = fsutil.ReplaceTildeInDir(strings.TrimPrefix(setting, "file:"))
		if err != nil {
			return
		}
		var meta toml.MetaData
		meta, err = toml.DecodeFile(filePath, config)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			err = errors.Errorf("unknown settings %q in file %q", undecoded, filePath)
			return
		}
		for _, key := range meta.Keys() {
			newParamsSet = append(newParamsSet, key.String())
		}
		return
	}

	paramName, valueStr, found := strings.Cut(setting, "=")
	if !found || paramName == "" {
		err = errors.Errorf("can't parse settings %q: each setting requires the format \"<param>=<value>\"", setting)
		return
	}
	field, found := settingField(configV, paramName)
	if !found {
		err = errors.Errorf("can't set parameter %q: unknown parameter, valid ones are %q", paramName, SettingNames(config))
		return
	}
	if err = parseValue(field, valueStr); err != nil {
		err = errors.Wrapf(err, "failed to parse value %q for parameter %q (current value is %#v)",
			valueStr, paramName, field.Interface())
		return
	}
	newParamsSet = append(newParamsSet, paramName)
	return
}

// settingName returns the name of the setting for the struct field, or "" if it can't be set.
func settingName(field reflect.StructField) string {
	if !field.IsExported() {
		return ""
	}
	tag := field.Tag.Get("toml")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return strings.ToLower(field.Name)
}

func settingField(configV reflect.Value, name string) (reflect.Value, bool) {
	configT := configV.Type()
	for ii := range configT.NumField() {
		if settingName(configT.Field(ii)) == name {
			return configV.Field(ii), true
		}
	}
	return reflect.Value{}, false
}

// SettingNames returns the names of the parameters of config that can be set, sorted.
func SettingNames(config any) []string {
	configT := reflect.TypeOf(config)
	for configT.Kind() == reflect.Pointer {
		configT = configT.Elem()
	}
	var names []string
	for ii := range configT.NumField() {
		if name := settingName(configT.Field(ii)); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// parseValue parses valueStr into field, according to its type.
func parseValue(field reflect.Value, valueStr string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(valueStr)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool:
		ptr := reflect.New(field.Type())
		if err := json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), ptr.Interface()); err != nil {
			return err
		}
		field.Set(ptr.Elem())
		return nil
	case reflect.Slice:
		if valueStr == "" {
			field.Set(reflect.MakeSlice(field.Type(), 0, 0))
			return nil
		}
		parts := strings.Split(valueStr, ",")
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for ii, part := range parts {
			if err := parseValue(slice.Index(ii), strings.TrimSpace(part)); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil
	}
	return fmt.Errorf("don't know how to parse type %s", field.Type())
}

// SprintSettings pretty-prints the values of the parameters of config, one per line.
func SprintSettings(config any) string {
	configV := reflect.Indirect(reflect.ValueOf(config))
	var parts []string
	for _, name := range SettingNames(config) {
		field, _ := settingField(configV, name)
		parts = append(parts, fmt.Sprintf("\t%q: (%s) %v", name, field.Type(), field.Interface()))
	}
	return strings.Join(parts, "\n")
}
