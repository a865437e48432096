// SPDX-License-Identifier: MIT
//
// Package build carries the binary's name, build time, commit and version,
// injected at link time:
//
//	go build -ldflags "-X sinescope/pkg/build.buildName=sinescope \
//	  -X sinescope/pkg/build.buildTime=$(date -u +%FT%TZ) \
//	  -X sinescope/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X sinescope/pkg/build.buildVersion=0.1.0"
//
// A binary built without any of these flags runs with development defaults.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the info for the version command.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = devInfo()
)

func devInfo() *Info {
	return &Info{
		Name:        "sinescope",
		Description: "Multi-channel sine generator and triggered audio scope",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the link-time values into the build info. When no
// value was injected the development defaults are kept. A partial set of
// flags is an error, since it means the build script is broken.
func Initialize() error {
	if buildName == "" && buildTime == "" && buildCommit == "" && buildVersion == "" {
		return nil
	}

	var errs []error
	if buildName == "" {
		errs = append(errs, errors.New("BuildName is required"))
	}
	if buildTime == "" {
		errs = append(errs, errors.New("BuildTime is required"))
	}
	if buildCommit == "" {
		errs = append(errs, errors.New("BuildCommit is required"))
	}
	if buildVersion == "" {
		errs = append(errs, errors.New("BuildVersion is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	buildInfo.Name = buildName
	buildInfo.Time = buildTime
	buildInfo.Commit = buildCommit
	buildInfo.Version = buildVersion
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() *Info {
	return buildInfo
}
