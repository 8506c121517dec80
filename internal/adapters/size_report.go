package adapters

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"rootstrap/internal/ports"
	"rootstrap/internal/types"
)

// SizeReportAdapter persists the post-extract size report as JSON.
type SizeReportAdapter struct{}

func NewSizeReportAdapter() SizeReportAdapter {
	return SizeReportAdapter{}
}

func (a SizeReportAdapter) Write(path string, report types.SizeReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create size report directory").
			WithCause(err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode size report").
			WithCause(err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (a SizeReportAdapter) Read(path string) (types.SizeReport, error) {
	var report types.SizeReport
	data, err := os.ReadFile(path)
	if err != nil {
		return report, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read size report").
			WithCause(err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to decode size report").
			WithCause(err)
	}
	return report, nil
}

var _ ports.SizeReportPort = SizeReportAdapter{}
