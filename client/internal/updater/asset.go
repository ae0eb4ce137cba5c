package updater

import (
	"runtime"
	"strings"
)

// PlatformKey identifies the host operating system in the release feed's
// naming scheme.
type PlatformKey string

const (
	PlatformDarwin PlatformKey = "darwin"
	PlatformWin32  PlatformKey = "win32"
	PlatformLinux  PlatformKey = "linux"
)

// manifestNames maps a platform key to the manifest file the download engine
// expects to find among the release assets. Platforms without an entry are
// unsupported.
var manifestNames = map[PlatformKey]string{
	PlatformDarwin: "latest-mac.yml",
	PlatformWin32:  "latest.yml",
	PlatformLinux:  "latest-linux.yml",
}

// CurrentPlatformKey maps runtime.GOOS to the feed's platform naming.
func CurrentPlatformKey() PlatformKey {
	if runtime.GOOS == "windows" {
		return PlatformWin32
	}
	return PlatformKey(runtime.GOOS)
}

// ManifestName returns the manifest file name expected for the platform.
func ManifestName(platform PlatformKey) (string, error) {
	name, ok := manifestNames[platform]
	if !ok {
		return "", &UnsupportedPlatformError{Platform: platform}
	}
	return name, nil
}

// ResolveAsset maps a release to the single download URL matching the host
// platform. It returns exactly one URL or fails, never an ambiguous match.
func ResolveAsset(release ReleaseRecord, platform PlatformKey) (string, error) {
	want, err := ManifestName(platform)
	if err != nil {
		return "", err
	}

	for _, asset := range release.Assets {
		if asset.Name == want {
			return asset.DownloadURL, nil
		}
	}

	return "", &NoMatchingAssetError{Platform: platform, Want: want, Release: release.TagName}
}

// FeedBaseURL strips the trailing path segment from a resolved asset URL.
// The generic download engine appends the platform manifest filename to the
// feed URL it is configured with, so it must receive the URL of the directory
// holding the manifest rather than the manifest itself. This string-shape
// convention is part of the engine's feed-URL contract.
func FeedBaseURL(assetURL string) string {
	idx := strings.LastIndex(assetURL, "/")
	if idx < 0 {
		return assetURL
	}
	return assetURL[:idx]
}
