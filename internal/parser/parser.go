// Package parser reads device address-book exports: vCard files, YAML lists
// and the legacy "name\nnumber," record format.
package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/trailguard/internal/models"
)

// Supported export extensions.
const (
	ExtVCard   = ".vcf"
	ExtYAML    = ".yaml"
	ExtYML     = ".yml"
	ExtRecords = ".txt"
)

// Supported reports whether name has an extension Parse understands.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtVCard, ExtYAML, ExtYML, ExtRecords:
		return true
	}
	return false
}

// Parse dispatches on the file extension of name.
func Parse(name string, data []byte) ([]models.DeviceContact, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtVCard:
		return ParseVCard(data), nil
	case ExtYAML, ExtYML:
		return ParseYAML(data)
	case ExtRecords:
		return ParseRecords(string(data)), nil
	default:
		return nil, fmt.Errorf("parser: unsupported export %q", name)
	}
}

// ParseVCard returns one entry per TEL property. Cards without a TEL are skipped.
func ParseVCard(data []byte) []models.DeviceContact {
	var (
		out    []models.DeviceContact
		name   string
		phones []string
		inCard bool
	)
	for _, line := range unfold(data) {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		prop := strings.ToUpper(key)
		if i := strings.Index(prop, ";"); i >= 0 {
			prop = prop[:i]
		}
		// Drop any group prefix such as "item1.TEL".
		if i := strings.LastIndex(prop, "."); i >= 0 {
			prop = prop[i+1:]
		}

		switch prop {
		case "BEGIN":
			inCard, name, phones = true, "", nil
		case "END":
			if inCard {
				for _, p := range phones {
					out = append(out, models.DeviceContact{Name: name, RawPhoneNumber: p})
				}
			}
			inCard = false
		case "FN":
			name = unescape(value)
		case "N":
			if name == "" {
				name = nameFromN(value)
			}
		case "TEL":
			v := strings.TrimPrefix(strings.TrimSpace(value), "tel:")
			if v != "" {
				phones = append(phones, v)
			}
		}
	}
	return out
}

// unfold joins RFC 6350 continuation lines.
func unfold(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func nameFromN(v string) string {
	parts := strings.Split(v, ";")
	var given, family string
	if len(parts) > 0 {
		family = unescape(parts[0])
	}
	if len(parts) > 1 {
		given = unescape(parts[1])
	}
	return strings.TrimSpace(given + " " + family)
}

func unescape(s string) string {
	r := strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, " ", `\\`, `\`)
	return strings.TrimSpace(r.Replace(s))
}

type yamlExport struct {
	Contacts []models.DeviceContact `yaml:"contacts"`
}

// ParseYAML accepts either a top-level list of {name, phone} or a mapping
// with a "contacts" list.
func ParseYAML(data []byte) ([]models.DeviceContact, error) {
	var list []models.DeviceContact
	if err := yaml.Unmarshal(data, &list); err == nil {
		return filterEmpty(list), nil
	}
	var doc yamlExport
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parser: yaml export: %w", err)
	}
	return filterEmpty(doc.Contacts), nil
}

// ParseRecords reads "name\nnumber" records separated by commas.
func ParseRecords(s string) []models.DeviceContact {
	var out []models.DeviceContact
	for _, rec := range strings.Split(s, ",") {
		rec = strings.Trim(rec, "\r\n ")
		if rec == "" {
			continue
		}
		name, number, ok := strings.Cut(rec, "\n")
		if !ok {
			continue
		}
		out = append(out, models.DeviceContact{
			Name:           strings.TrimSpace(name),
			RawPhoneNumber: strings.TrimSpace(number),
		})
	}
	return out
}

func filterEmpty(in []models.DeviceContact) []models.DeviceContact {
	out := in[:0]
	for _, c := range in {
		if strings.TrimSpace(c.RawPhoneNumber) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
