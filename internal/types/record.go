package types

// PackageRecord is one resolved package. The set of records for a run
// is the manifest; records are immutable once resolved.
type PackageRecord struct {
	Name          string        `yaml:"name" json:"name"`
	Version       string        `yaml:"version" json:"version"`
	InstalledSize int64         `yaml:"installed_size" json:"installed_size"`
	Priority      PriorityClass `yaml:"priority" json:"priority"`
	Origin        PackageOrigin `yaml:"origin,omitempty" json:"origin,omitempty"`
}

// FreezeManifest is the persisted form of a frozen package set plus the
// configuration fields needed to regenerate an equivalent run. It must
// round-trip losslessly through freeze then replay.
type FreezeManifest struct {
	Architecture string          `yaml:"architecture"`
	Suite        string          `yaml:"suite"`
	Priorities   []PriorityClass `yaml:"priorities,omitempty"`
	Packages     []PackageRecord `yaml:"packages"`
}

// SizeReportEntry is one row of the post-extract size report.
type SizeReportEntry struct {
	Name          string        `json:"name"`
	Version       string        `json:"version"`
	PackedSize    int64         `json:"packed_size"`
	InstalledSize int64         `json:"installed_size"`
	Priority      PriorityClass `json:"priority"`
	Description   string        `json:"description,omitempty"`
}

// SizeReport is the artifact written after the extract phase. Freeze
// may consume it in place of live package database introspection.
type SizeReport struct {
	Architecture string            `json:"architecture"`
	Suite        string            `json:"suite"`
	Entries      []SizeReportEntry `json:"entries"`
}
