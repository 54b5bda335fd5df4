// Package amiconf implements an auxiliary, out-of-core helper: a
// best-effort routine that parses Asterisk's manager.conf to recover
// the AMI secret for a given username, using gopkg.in/ini.v1. Purely
// local file I/O; no protocol involvement.
package amiconf

import (
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/stumpf-works/asterisk-ami/pkg/amierr"
)

// DefaultPaths are the locations manager.conf is conventionally
// installed at, searched in order. The original C helper only ever
// looked at /etc/asterisk/manager.conf; this adds the common FreeBSD
// and Homebrew layout as well as an environment override.
var DefaultPaths = []string{
	"/etc/asterisk/manager.conf",
	"/usr/local/etc/asterisk/manager.conf",
}

const envOverride = "AMI_MANAGER_CONF"

// DetectPassword tries to read the AMI secret for username out of
// manager.conf. It is a convenience function and only works in the
// simplest case: same host, process has read access to the config
// file. confPaths overrides the search list; if empty, DefaultPaths is
// used, prefixed by the AMI_MANAGER_CONF environment variable when
// set.
func DetectPassword(username string, confPaths ...string) (string, error) {
	if username == "" {
		return "", amierr.Usage("username must not be empty", nil)
	}

	paths := confPaths
	if len(paths) == 0 {
		paths = DefaultPaths
		if override := os.Getenv(envOverride); override != "" {
			paths = append([]string{override}, paths...)
		}
	}

	var lastErr error
	for _, path := range paths {
		secret, err := readSecret(path, username)
		if err == nil {
			return secret, nil
		}
		lastErr = err
	}
	return "", amierr.Usage("could not determine AMI password from manager.conf", lastErr)
}

// readSecret opens a single manager.conf candidate and looks up the
// section named after username, returning its "secret" key.
func readSecret(path, username string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return "", err
	}

	for _, name := range cfg.SectionStrings() {
		if !strings.EqualFold(name, username) {
			continue
		}
		section := cfg.Section(name)
		key := section.Key("secret")
		if key.String() == "" {
			continue
		}
		return key.String(), nil
	}
	return "", amierr.Usage("no section for username in manager.conf", nil)
}
