package core

import (
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	pep440 "github.com/aquasecurity/go-pep440-version"
)

// pipOps are the requirement operators accepted in pip package specs,
// longest first so two-character operators match before their prefix.
var pipOps = []string{"===", "==", "~=", "!=", ">=", "<=", ">", "<"}

// ValidatePipRequirements checks pip package specs before the
// pip-install phase runs, so a bad pin fails the run up front rather
// than deep inside the session.
func ValidatePipRequirements(specs []string) error {
	for _, spec := range specs {
		if err := validatePipRequirement(spec); err != nil {
			return err
		}
	}
	return nil
}

// SplitPipRequirement splits a requirement spec into its package name
// and pinned version. The version is empty unless the spec pins one
// exactly.
func SplitPipRequirement(spec string) (string, string) {
	trimmed := strings.TrimSpace(spec)
	for _, op := range pipOps {
		idx := strings.Index(trimmed, op)
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(trimmed[:idx])
		if op == "==" || op == "===" {
			return name, strings.TrimSpace(trimmed[idx+len(op):])
		}
		return name, ""
	}
	return trimmed, ""
}

func validatePipRequirement(spec string) error {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("empty pip package spec")
	}
	for _, op := range pipOps {
		idx := strings.Index(trimmed, op)
		if idx < 0 {
			continue
		}
		version := strings.TrimSpace(trimmed[idx+len(op):])
		if _, err := pep440.Parse(version); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("invalid pip version pin in " + trimmed).
				WithCause(err)
		}
		return nil
	}
	// A bare package name without a pin is fine.
	return nil
}
