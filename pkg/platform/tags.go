// Package platform picks the platform-specific child of a tagged recipe
// block (the "all"/"linux"/"ubuntu"/"windows" keys a component's install
// or run step can be keyed by) by probing the host once at process start
// and ranking tags from least to most specific.
package platform

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Ranks holds the tag -> specificity rank table. Higher ranks win when a
// recipe block has more than one matching child tag. Populated once by
// Detect; tests may construct their own Ranks without touching the host.
type Ranks map[string]int

var (
	detectOnce   sync.Once
	detectedTags Ranks
)

// Detect probes the current host and returns its tag rank table, caching
// the result for the lifetime of the process. Probing runs once even
// under concurrent first callers.
func Detect() Ranks {
	detectOnce.Do(func() {
		detectedTags = detect()
	})
	return detectedTags
}

func detect() Ranks {
	r := Ranks{
		"all": 0,
		"any": 0,
	}

	if pathExists("/bin/bash") || pathExists("/usr/bin/bash") {
		r["posix"] = 3
	}
	if pathExists("/proc") {
		r["linux"] = 10
	}
	if pathExists("/usr/bin/apt-get") {
		r["debian"] = 11
	}
	if pathExists("/usr/bin/yum") {
		r["fedora"] = 11
	}
	if runtime.GOOS == "windows" {
		r["windows"] = 5
	}

	sysver := strings.ToLower(unameA())
	switch {
	case strings.Contains(sysver, "ubuntu"):
		r["ubuntu"] = 20
	case strings.Contains(sysver, "darwin"):
		r["macos"] = 20
	}
	if strings.Contains(sysver, "raspbian") {
		r["raspbian"] = 22
	}
	if strings.Contains(sysver, "qnx") {
		r["qnx"] = 22
	}
	if strings.Contains(sysver, "cygwin") {
		r["cygwin"] = 22
	}
	if strings.Contains(sysver, "freebsd") {
		r["freebsd"] = 22
	}
	if strings.Contains(sysver, "solaris") || strings.Contains(sysver, "sunos") {
		r["solaris"] = 22
	}

	if host, err := os.Hostname(); err == nil && host != "" {
		r[host] = 99
	}

	return r
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func unameA() string {
	out, err := exec.Command("uname", "-a").CombinedOutput()
	if err != nil {
		return ""
	}
	return string(out)
}

// Rank returns tag's specificity, or -1 if the host never matched it.
func (r Ranks) Rank(tag string) int {
	if v, ok := r[tag]; ok {
		return v
	}
	return -1
}

// PickByOS returns the highest-ranked tag among candidates and a bool
// reporting whether any candidate had a non-negative rank. Ties keep
// whichever candidate appears first in candidates.
func (r Ranks) PickByOS(candidates []string) (string, bool) {
	best := ""
	bestRank := -1
	found := false
	for _, tag := range candidates {
		g := r.Rank(tag)
		if g > bestRank {
			bestRank = g
			best = tag
			found = true
		}
	}
	return best, found
}
