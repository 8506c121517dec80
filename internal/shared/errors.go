// Package shared provides error constructors and small helpers used
// across the rootstrap codebase.
package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// The bootstrap error taxonomy. Each constructor stamps a stable
// message prefix so callers and tests can classify failures, and an
// errbuilder code so the CLI can map them to exit statuses.

const (
	msgBackendUnavailable    = "backend unavailable"
	msgInsufficientPrivilege = "insufficient privilege"
	msgMissingHelper         = "missing helper"
	msgStageError            = "stage error"
	msgPhaseFailure          = "phase failure"
	msgNoPackageDatabase     = "no package database"
	msgMalformedManifest     = "malformed manifest"
)

// BackendUnavailable reports that a backend's host support (binary,
// emulation support) is absent, naming the missing capability.
func BackendUnavailable(capability string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("%s: %s", msgBackendUnavailable, capability))
}

// InsufficientPrivilege reports that the direct-privilege backend was
// selected without the process holding elevated privilege.
func InsufficientPrivilege(detail string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("%s: %s", msgInsufficientPrivilege, detail))
}

// MissingHelper reports that the user-namespace backend's setuid
// helper is not present on the host.
func MissingHelper(helper string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("%s: %s", msgMissingHelper, helper))
}

// StageError reports a bind staging or unstaging failure.
func StageError(detail string, cause error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("%s: %s", msgStageError, detail)).
		WithCause(cause)
}

// PhaseFailure reports that a phase's external command failed.
func PhaseFailure(phase string, cause error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("%s: %s", msgPhaseFailure, phase)).
		WithCause(cause)
}

// NoPackageDatabase reports a freeze against a tree that has never had
// packages resolved or extracted into it.
func NoPackageDatabase(path string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s: %s", msgNoPackageDatabase, path))
}

// MalformedManifest reports a schema violation in a freeze manifest.
func MalformedManifest(detail string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("%s: %s", msgMalformedManifest, detail))
}

// IsBackendUnavailable reports whether err is a BackendUnavailable.
func IsBackendUnavailable(err error) bool { return hasPrefix(err, msgBackendUnavailable) }

// IsInsufficientPrivilege reports whether err is an InsufficientPrivilege.
func IsInsufficientPrivilege(err error) bool { return hasPrefix(err, msgInsufficientPrivilege) }

// IsMissingHelper reports whether err is a MissingHelper.
func IsMissingHelper(err error) bool { return hasPrefix(err, msgMissingHelper) }

// IsStageError reports whether err is a StageError.
func IsStageError(err error) bool { return hasPrefix(err, msgStageError) }

// IsPhaseFailure reports whether err is a PhaseFailure.
func IsPhaseFailure(err error) bool { return hasPrefix(err, msgPhaseFailure) }

// IsNoPackageDatabase reports whether err is a NoPackageDatabase.
func IsNoPackageDatabase(err error) bool { return hasPrefix(err, msgNoPackageDatabase) }

// IsMalformedManifest reports whether err is a MalformedManifest.
func IsMalformedManifest(err error) bool { return hasPrefix(err, msgMalformedManifest) }

func hasPrefix(err error, prefix string) bool {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) {
		return strings.HasPrefix(builder.Msg, prefix)
	}
	return false
}
