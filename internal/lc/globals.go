package lc

import (
	"errors"
	"runtime"
	"time"

	"github.com/gookit/color"
)

// Global variables
var (
	ConfigFile = "/etc/lc.conf"
	Debug      bool
	version    = "dev" // overridden at build time
	arch       = runtime.GOARCH
	buildDate  = "unknown" // overridden at build time

	errForgeNotFound = errors.New("forge not found")

	// nowFunc is swapped out in tests for deterministic timestamps.
	nowFunc = time.Now
)

// Well-known entry names inside a repository directory.
const (
	RepoConfigName    = ".lc_config"
	BuildLockName     = ".lc_lock"
	BusyLockName      = ".lc_busy"
	BuildIDsName      = ".lc_buildids.json"
	ArtifactIndexName = "artifacts.json"
	ForgesDirName     = "forges"
	LogsDirName       = ".build_logs"
	PackageConfName   = "conf.json"
	PublicKeyName     = "RPM-GPG-KEY-local"
	RepoTemplateName  = "local.repo"
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

func debugf(format string, a ...interface{}) {
	if Debug {
		color.Gray.Printf("[debug] "+format, a...)
	}
}
