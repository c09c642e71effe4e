package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/aps"
	"github.com/stanstork/designauto/internal/models"
)

const latestVersion = "$LATEST"

// API lists what the platform knows about.
type API interface {
	EnginesPage(ctx context.Context, page string) (models.Page, error)
	ListActivities(ctx context.Context) ([]string, error)
}

type Catalog struct {
	api        API
	bundlesDir string
	nickname   string
	logger     zerolog.Logger
}

func New(api API, bundlesDir, nickname string, logger zerolog.Logger) *Catalog {
	return &Catalog{
		api:        api,
		bundlesDir: bundlesDir,
		nickname:   nickname,
		logger:     logger.With().Str("component", "discovery").Logger(),
	}
}

// Engines returns every engine the platform offers, sorted.
func (c *Catalog) Engines(ctx context.Context) ([]string, error) {
	engines, err := aps.CollectPages(ctx, c.api.EnginesPage)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to get engines list")
		return nil, errors.Wrap(err, "failed to get engines list")
	}
	if engines == nil {
		engines = []string{}
	}
	sort.Strings(engines)
	return engines, nil
}

// LocalPackages returns the names of the zip packages in the bundles
// directory.
func (c *Catalog) LocalPackages() ([]string, error) {
	entries, err := os.ReadDir(c.bundlesDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read bundles directory %s", c.bundlesDir)
	}
	packages := []string{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".zip" {
			continue
		}
		packages = append(packages, strings.TrimSuffix(e.Name(), ".zip"))
	}
	sort.Strings(packages)
	return packages, nil
}

// Activities returns the activities defined under this nickname, without the
// nickname prefix and without $LATEST pseudo versions.
func (c *Catalog) Activities(ctx context.Context) ([]string, error) {
	ids, err := c.api.ListActivities(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to get activities list")
		return nil, errors.Wrap(err, "failed to get activities list")
	}
	prefix := c.nickname + "."
	own := []string{}
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) || strings.Contains(id, latestVersion) {
			continue
		}
		own = append(own, strings.TrimPrefix(id, prefix))
	}
	return own, nil
}
