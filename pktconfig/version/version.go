// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package version

import (
	"fmt"
	"regexp"
	"strings"
)

// buildTag is set at link time from `git describe`, e.g.
//
//	go build -ldflags "-X github.com/pkt-cash/pldwallet/pktconfig/version.buildTag=$(git describe --tags --dirty)"
var buildTag = ""

var userAgentName = "unknown" // pldwallet, pldwallet-sync...
var appMajor uint = 0
var appMinor uint = 0
var appPatch uint = 0
var version = "0.0.0-custom"
var custom = true
var prerelease = false
var dirty = false

var prereleaseRe = regexp.MustCompile(`-[0-9]+-g[0-9a-f]{7,}`)

func init() {
	parse(buildTag)
}

func parse(ver string) {
	if len(ver) == 0 {
		// custom build
		return
	}
	tag := "-custom"
	// v0.3.1-4-gfa3ba767-dirty
	if _, err := fmt.Sscanf(strings.TrimPrefix(ver, "pldwallet-"), "v%d.%d.%d",
		&appMajor, &appMinor, &appPatch); err == nil {
		tag = ""
		custom = false
		if x := prereleaseRe.FindString(ver); len(x) > 0 {
			tag += "-" + x[strings.LastIndex(x, "-")+2:]
			prerelease = true
		}
		if strings.HasSuffix(ver, "-dirty") {
			tag += "-dirty"
			dirty = true
		}
	}
	version = fmt.Sprintf("%d.%d.%d%s", appMajor, appMinor, appPatch, tag)
}

func IsCustom() bool {
	return custom
}

func IsDirty() bool {
	return dirty
}

func IsPrerelease() bool {
	return prerelease
}

func SetUserAgentName(ua string) {
	if userAgentName != "unknown" {
		panic("setting useragent to [" + ua +
			"] failed, useragent was already set to [" + userAgentName + "]")
	}
	userAgentName = ua
}

func Version() string {
	return version
}

func UserAgentName() string {
	return userAgentName
}

// UserAgent is the value of the User-Agent header sent to the daemon.
func UserAgent() string {
	return userAgentName + "/" + version
}
