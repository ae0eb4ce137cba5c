package feedengine

import "gopkg.in/yaml.v3"

// Manifest is the platform manifest the publisher uploads next to each
// release artifact (latest.yml and friends). The engine appends the manifest
// filename to its configured feed URL to locate it.
type Manifest struct {
	Version     string         `yaml:"version"`
	Path        string         `yaml:"path"`
	ReleaseDate string         `yaml:"releaseDate"`
	Files       []ManifestFile `yaml:"files"`
}

// ManifestFile describes one downloadable artifact listed in the manifest.
type ManifestFile struct {
	URL  string `yaml:"url"`
	Size int64  `yaml:"size"`
}

func parseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// artifactPath returns the relative path of the artifact to download,
// preferring the explicit path field over the files list.
func (m *Manifest) artifactPath() string {
	if m.Path != "" {
		return m.Path
	}
	if len(m.Files) > 0 {
		return m.Files[0].URL
	}
	return ""
}

// artifactSize returns the expected artifact size when the manifest carries
// one, zero otherwise.
func (m *Manifest) artifactSize() int64 {
	for _, f := range m.Files {
		if f.URL == m.artifactPath() {
			return f.Size
		}
	}
	if len(m.Files) > 0 && m.Path == "" {
		return m.Files[0].Size
	}
	return 0
}
