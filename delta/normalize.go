// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package delta

import (
	"regexp"
	"strings"
)

var tagPrefixes = []string{"service-", "unit-", "machine-", "environment-"}

var unitOrdinal = regexp.MustCompile(`-(\d+)$`)

// CleanEntityTag converts an entity tag to the id used by the store:
// the kind prefix is stripped, and unit tags have their trailing
// ordinal separator converted from hyphen to slash ("unit-mysql-0"
// becomes "mysql/0"). A tag with no recognised prefix is returned
// unchanged; annotation deltas may reference entity kinds this
// function does not special-case.
func CleanEntityTag(tag string) string {
	for _, prefix := range tagPrefixes {
		if !strings.HasPrefix(tag, prefix) {
			continue
		}
		id := tag[len(prefix):]
		if id == "" {
			return tag
		}
		if prefix == "unit-" {
			id = unitOrdinal.ReplaceAllString(id, "/$1")
		}
		return id
	}
	return tag
}

// legacyFieldNames holds the legacy wire names that do not reduce to a
// canonical name by hyphen-to-underscore rewriting alone.
var legacyFieldNames = map[string]string{
	"charm-url":  "charm",
	"is-exposed": "exposed",
}

// TranslateLegacyFields maps the legacy flat dialect's field names
// onto canonical attribute names. Already-canonical names pass through
// untouched, so translating twice gives the same result.
func TranslateLegacyFields(change map[string]interface{}) map[string]interface{} {
	attrs := make(map[string]interface{}, len(change))
	for name, value := range change {
		if canonical, ok := legacyFieldNames[name]; ok {
			name = canonical
		} else {
			name = strings.ReplaceAll(name, "-", "_")
		}
		attrs[name] = value
	}
	return attrs
}
