// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package profile

import (
	"fmt"
	"os"
	"strings"
)

// ProfileType selects logging and output defaults for an environment.
type ProfileType string

const (
	DEV  ProfileType = "DEV"
	TEST ProfileType = "TEST"
	PROD ProfileType = "PROD"
)

var Current = DEV

// Parse accepts a profile name in any case. Unknown names are reported as not ok.
func Parse(name string) (ProfileType, bool) {
	switch p := ProfileType(strings.ToUpper(strings.TrimSpace(name))); p {
	case DEV, TEST, PROD:
		return p, true
	default:
		return DEV, false
	}
}

// InitProfile sets Current from the PROFILE environment variable and keeps DEV when it is unset or unknown.
func InitProfile() {
	if name, set := os.LookupEnv("PROFILE"); set {
		p, ok := Parse(name)
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown profile %q, using %s\n", name, p)
		}
		Current = p
	}
	fmt.Printf("Current profile: %s\n", Current)
}
