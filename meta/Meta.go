// Package meta records the package metadata of gomarl: its name, its
// version, and the optional integration groups that a build may enable.
package meta

import (
	"fmt"
	"time"
)

// Name is the canonical package name
const Name string = "gomarl"

// Version components. The full version string is derived from these so
// that programs can branch on individual components.
const (
	VersionMajor int = 0
	VersionMinor int = 1
	VersionPatch int = 3
)

// FullVersion returns the canonical release version string
func FullVersion() string {
	return fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}

// NightlyVersion returns the version string of a nightly build stamped
// with the date of t, e.g. "0.1.3.dev20260825"
func NightlyVersion(t time.Time) string {
	return fmt.Sprintf("%s.dev%s", FullVersion(), t.Format("20060102"))
}

// Extras lists the optional integration groups of the package and the
// modules each group pulls in. Core training needs none of these: they
// cover extra environment suites, remote experience streams, and
// episode recording.
func Extras() map[string][]string {
	return map[string][]string{
		"gym":    {"github.com/samuelfneumann/gogym"},
		"maze":   {"github.com/samuelfneumann/gomaze"},
		"redis":  {"github.com/redis/go-redis/v9"},
		"amqp":   {"github.com/rabbitmq/amqp091-go"},
		"record": {"github.com/fogleman/gg"},
	}
}
