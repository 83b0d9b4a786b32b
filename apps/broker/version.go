// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package broker

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultProtocolVersion is the broker protocol version this package speaks.
const DefaultProtocolVersion = "1.0"

// parseVersion parses "<major>" or "<major>.<minor>".
func parseVersion(v string) (major, minor int, err error) {
	majorStr, minorStr, hasMinor := strings.Cut(strings.TrimSpace(v), ".")
	major, err = strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return 0, 0, fmt.Errorf("version %q is not <major>[.<minor>]", v)
	}
	if hasMinor {
		minor, err = strconv.Atoi(minorStr)
		if err != nil || minor < 0 {
			return 0, 0, fmt.Errorf("version %q is not <major>[.<minor>]", v)
		}
	}
	return major, minor, nil
}

// checkVersion reports whether a broker speaking got can talk to a client supporting
// supported. Versions are compatible when their majors match; minors only add fields.
func checkVersion(supported, got string) error {
	sMajor, _, err := parseVersion(supported)
	if err != nil {
		return fmt.Errorf("supported %w", err)
	}
	gMajor, _, err := parseVersion(got)
	if err != nil {
		return err
	}
	if sMajor != gMajor {
		return fmt.Errorf("broker protocol version %s is incompatible with %s", got, supported)
	}
	return nil
}
