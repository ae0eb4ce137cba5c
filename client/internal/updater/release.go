package updater

import (
	"sort"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
)

// ReleaseRecord is a single published release parsed from the update feed.
// Records are immutable once parsed and unique by tag within one feed response.
type ReleaseRecord struct {
	TagName    string  `json:"tag_name"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`

	version *goversion.Version
}

// Asset is a single downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// Version returns the parsed semantic version of the release tag.
func (r ReleaseRecord) Version() *goversion.Version {
	return r.version
}

// parseVersions attaches the parsed semantic version to each record. Records
// with unparsable tags are dropped with a warning so a single bad tag can't
// poison the whole feed.
func parseVersions(records []ReleaseRecord) []ReleaseRecord {
	parsed := make([]ReleaseRecord, 0, len(records))
	for _, r := range records {
		v, err := goversion.NewVersion(r.TagName)
		if err != nil {
			log.Warnf("skipping release with unparsable tag %q: %v", r.TagName, err)
			continue
		}
		r.version = v
		parsed = append(parsed, r)
	}
	return parsed
}

// sortReleases orders records by descending semantic version, with full
// semver precedence including pre-release ordering.
func sortReleases(records []ReleaseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].version.GreaterThan(records[j].version)
	})
}

func stableOnly(records []ReleaseRecord) []ReleaseRecord {
	stable := make([]ReleaseRecord, 0, len(records))
	for _, r := range records {
		if r.Prerelease {
			continue
		}
		stable = append(stable, r)
	}
	return stable
}
