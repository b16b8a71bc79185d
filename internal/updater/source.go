package updater

import (
	"context"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

// release is the part of a GitHub release the service needs.
type release struct {
	Version     string
	Notes       string
	URL         string
	PublishedAt time.Time
	AssetSize   int
	// Newer reports whether the release is newer than the running build.
	Newer bool

	asset *selfupdate.Release
}

// releaseSource finds and installs host releases.
type releaseSource interface {
	// Latest returns the newest release, or nil when the repository has none.
	Latest(ctx context.Context, current string, dev bool) (*release, error)
	// Install replaces the executable at exe with rel.
	Install(ctx context.Context, rel *release, exe string) error
}

// githubSource reads releases of one GitHub repository. A failed install
// leaves the old binary in place; go-selfupdate restores it itself.
type githubSource struct {
	updater *selfupdate.Updater
	repo    selfupdate.Repository
}

func newGitHubSource(repository string, prerelease bool) (*githubSource, error) {
	src, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, err
	}
	u, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     src,
		Prerelease: prerelease,
	})
	if err != nil {
		return nil, err
	}
	return &githubSource{updater: u, repo: selfupdate.ParseSlug(repository)}, nil
}

func (g *githubSource) Latest(ctx context.Context, current string, dev bool) (*release, error) {
	rel, found, err := g.updater.DetectLatest(ctx, g.repo)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &release{
		Version:     rel.Version(),
		Notes:       rel.ReleaseNotes,
		URL:         rel.URL,
		PublishedAt: rel.PublishedAt,
		AssetSize:   rel.AssetByteSize,
		// dev builds are never current
		Newer: dev || rel.GreaterThan(current),
		asset: rel,
	}, nil
}

func (g *githubSource) Install(ctx context.Context, rel *release, exe string) error {
	return g.updater.UpdateTo(ctx, rel.asset, exe)
}
