package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rootstrap/internal/adapters"
	"rootstrap/internal/types"
)

func writeSampleReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "size.json")
	reports := adapters.NewSizeReportAdapter()
	require.NoError(t, reports.Write(path, types.SizeReport{
		Architecture: "amd64",
		Suite:        "noble",
		Entries: []types.SizeReportEntry{
			{Name: "wget", Version: "1.21.4-1ubuntu4", PackedSize: 353381, InstalledSize: 1029120, Description: "retrieves files from the web"},
			{Name: "bash", Version: "5.2.21-2ubuntu4", PackedSize: 769926, InstalledSize: 1949696, Description: "GNU Bourne Again SHell, an sh-compatible shell"},
		},
	}))
	return path
}

func TestReportSortsByName(t *testing.T) {
	service := Service{SizeReports: adapters.NewSizeReportAdapter()}
	result, err := service.Report(context.Background(), ReportRequest{ReportPath: writeSampleReport(t)})
	require.NoError(t, err)

	require.Len(t, result.Lines, 2)
	assert.Contains(t, result.Lines[0], "bash")
	assert.Contains(t, result.Lines[1], "wget")
	// Long descriptions are truncated.
	assert.NotContains(t, result.Lines[0], "sh-compatible")
}

func TestReportSortsBySize(t *testing.T) {
	service := Service{SizeReports: adapters.NewSizeReportAdapter()}
	result, err := service.Report(context.Background(), ReportRequest{
		ReportPath: writeSampleReport(t),
		SortBySize: true,
	})
	require.NoError(t, err)

	require.Len(t, result.Lines, 2)
	assert.Contains(t, result.Lines[0], "wget")
	assert.Contains(t, result.Lines[1], "bash")
}

func TestReportHumanReadableSizes(t *testing.T) {
	service := Service{SizeReports: adapters.NewSizeReportAdapter()}
	result, err := service.Report(context.Background(), ReportRequest{
		ReportPath:    writeSampleReport(t),
		HumanReadable: true,
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(result.Lines[0], "KB") || strings.Contains(result.Lines[0], "MB"))
}

func TestReportTruncatesMultibyteDescriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "size.json")
	reports := adapters.NewSizeReportAdapter()
	require.NoError(t, reports.Write(path, types.SizeReport{
		Architecture: "amd64",
		Suite:        "noble",
		Entries: []types.SizeReportEntry{
			{Name: "fonts-noto", Version: "1.0", Description: strings.Repeat("ä", 40)},
		},
	}))

	service := Service{SizeReports: adapters.NewSizeReportAdapter()}
	result, err := service.Report(context.Background(), ReportRequest{ReportPath: path})
	require.NoError(t, err)

	require.Len(t, result.Lines, 1)
	assert.True(t, utf8.ValidString(result.Lines[0]))
	assert.Contains(t, result.Lines[0], strings.Repeat("ä", 30))
	assert.NotContains(t, result.Lines[0], strings.Repeat("ä", 31))
}

func TestReportMissingArtifact(t *testing.T) {
	service := Service{SizeReports: adapters.NewSizeReportAdapter()}
	_, err := service.Report(context.Background(), ReportRequest{
		ReportPath: filepath.Join(t.TempDir(), "absent.json"),
	})
	assert.Error(t, err)
}
