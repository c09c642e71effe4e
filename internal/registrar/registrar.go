package registrar

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/models"
)

const ActivityAlreadyDefined = "Activity already defined"

// ErrNotFound is returned when the local bundle package does not exist.
var ErrNotFound = errors.New("not found")

// API is the part of the platform the registrar provisions against.
type API interface {
	ListAppBundles(ctx context.Context) ([]string, error)
	CreateAppBundle(ctx context.Context, bundle models.AppBundle) (models.AppBundle, error)
	CreateAppBundleVersion(ctx context.Context, id string, bundle models.AppBundle) (models.AppBundle, error)
	CreateAppBundleAlias(ctx context.Context, id string, alias models.Alias) error
	ModifyAppBundleAlias(ctx context.Context, id, aliasID string, version int) error
	UploadAppBundle(ctx context.Context, params models.UploadParameters, filename string, pkg io.Reader) error
	ListActivities(ctx context.Context) ([]string, error)
	CreateActivity(ctx context.Context, activity models.Activity) (models.Activity, error)
	CreateActivityAlias(ctx context.Context, id string, alias models.Alias) error
	DeleteAccount(ctx context.Context) error
}

// Result is what a setup run reports back to the client.
type Result struct {
	AppBundle string `json:"appBundle"`
	Version   int    `json:"version"`
	Activity  string `json:"activity"`
}

type Registrar struct {
	api        API
	bundlesDir string
	nickname   string
	alias      string
	logger     zerolog.Logger
}

func New(api API, bundlesDir, nickname, alias string, logger zerolog.Logger) *Registrar {
	return &Registrar{
		api:        api,
		bundlesDir: bundlesDir,
		nickname:   nickname,
		alias:      alias,
		logger:     logger.With().Str("component", "registrar").Logger(),
	}
}

func appBundleName(pkg string) string { return pkg + "AppBundle" }
func activityName(pkg string) string  { return pkg + "Activity" }

// qualified returns "<nickname>.<id>+<alias>".
func (r *Registrar) qualified(id string) string {
	return fmt.Sprintf("%s.%s+%s", r.nickname, id, r.alias)
}

// PackagePath returns the local zip for a package name.
func (r *Registrar) PackagePath(pkg string) string {
	return filepath.Join(r.bundlesDir, pkg+".zip")
}

// Setup makes sure the package is registered as the latest app bundle version
// behind the alias and that an activity running it exists.
func (r *Registrar) Setup(ctx context.Context, engine, pkg string) (Result, error) {
	attrs, err := AttributesOf(engine)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(pkg) == "" || strings.ContainsAny(pkg, `/\`) {
		return Result{}, errors.Errorf("invalid package name %q", pkg)
	}
	zipPath := r.PackagePath(pkg)
	if _, err := os.Stat(zipPath); err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.Wrapf(ErrNotFound, "package %s", zipPath)
		}
		return Result{}, errors.Wrapf(err, "stat package %s", zipPath)
	}

	bundle, err := r.registerAppBundle(ctx, engine, pkg, zipPath)
	if err != nil {
		return Result{}, err
	}
	activity, err := r.registerActivity(ctx, engine, pkg, attrs)
	if err != nil {
		return Result{}, err
	}
	return Result{
		AppBundle: r.qualified(appBundleName(pkg)),
		Version:   bundle.Version,
		Activity:  activity,
	}, nil
}

type bundleState int

const (
	bundleAbsent bundleState = iota
	bundlePresent
)

func (r *Registrar) bundleState(ctx context.Context, qualifiedID string) (bundleState, error) {
	ids, err := r.api.ListAppBundles(ctx)
	if err != nil {
		return bundleAbsent, r.fail(err, "failed to get app bundles list")
	}
	if slices.Contains(ids, qualifiedID) {
		return bundlePresent, nil
	}
	return bundleAbsent, nil
}

func (r *Registrar) registerAppBundle(ctx context.Context, engine, pkg, zipPath string) (models.AppBundle, error) {
	name := appBundleName(pkg)
	qualifiedID := r.qualified(name)

	state, err := r.bundleState(ctx, qualifiedID)
	if err != nil {
		return models.AppBundle{}, err
	}

	var bundle models.AppBundle
	switch state {
	case bundleAbsent:
		bundle, err = r.api.CreateAppBundle(ctx, models.AppBundle{
			ID:          name,
			Package:     name,
			Engine:      engine,
			Description: "Description for " + name,
		})
		if err != nil {
			return models.AppBundle{}, r.fail(err, "cannot create app bundle")
		}
		if err := r.api.CreateAppBundleAlias(ctx, name, models.Alias{ID: r.alias, Version: 1}); err != nil {
			return models.AppBundle{}, r.fail(err, "failed to create alias")
		}
		if bundle.Version == 0 {
			bundle.Version = 1
		}
	case bundlePresent:
		bundle, err = r.api.CreateAppBundleVersion(ctx, name, models.AppBundle{
			Engine:      engine,
			Description: name,
		})
		if err != nil {
			return models.AppBundle{}, r.fail(err, "cannot create new version")
		}
		if err := r.api.ModifyAppBundleAlias(ctx, name, r.alias, bundle.Version); err != nil {
			return models.AppBundle{}, r.fail(err, "failed to create alias")
		}
	}
	r.logger.Info().Str("app_bundle", qualifiedID).Int("version", bundle.Version).Msg("registered app bundle version")

	if bundle.UploadParameters == nil {
		return models.AppBundle{}, r.fail(errors.New("platform returned no upload parameters"), "failed to upload app bundle")
	}
	f, err := os.Open(zipPath)
	if err != nil {
		return models.AppBundle{}, r.fail(err, "failed to upload app bundle")
	}
	defer f.Close()
	if err := r.api.UploadAppBundle(ctx, *bundle.UploadParameters, filepath.Base(zipPath), f); err != nil {
		return models.AppBundle{}, r.fail(err, "failed to upload app bundle")
	}
	return bundle, nil
}

func (r *Registrar) registerActivity(ctx context.Context, engine, pkg string, attrs EngineAttributes) (string, error) {
	name := activityName(pkg)
	qualifiedID := r.qualified(name)

	ids, err := r.api.ListActivities(ctx)
	if err != nil {
		return "", r.fail(err, "failed to get activities list")
	}
	// The activity follows the bundle alias, which already points at the new
	// version, so an existing definition is left as is.
	if slices.Contains(ids, qualifiedID) {
		return ActivityAlreadyDefined, nil
	}

	if _, err := r.api.CreateActivity(ctx, r.activitySpec(engine, pkg, attrs)); err != nil {
		return "", r.fail(err, "failed to create activity")
	}
	if err := r.api.CreateActivityAlias(ctx, name, models.Alias{ID: r.alias, Version: 1}); err != nil {
		return "", r.fail(err, "failed to create activity alias")
	}
	r.logger.Info().Str("activity", qualifiedID).Msg("defined activity")
	return qualifiedID, nil
}

func (r *Registrar) activitySpec(engine, pkg string, attrs EngineAttributes) models.Activity {
	bundle := appBundleName(pkg)
	activity := models.Activity{
		ID:          activityName(pkg),
		Engine:      engine,
		CommandLine: []string{strings.ReplaceAll(attrs.CommandLine, "{0}", bundle)},
		AppBundles:  []string{r.qualified(bundle)},
		Parameters: map[string]models.Parameter{
			"inputFile": {
				Description: "input file",
				LocalName:   "$(inputFile)",
				Required:    true,
				Verb:        models.VerbGet,
			},
			"inputJson": {
				Description: "input json",
				LocalName:   "params.json",
				Verb:        models.VerbGet,
			},
			"outputFile": {
				Description: "output file",
				LocalName:   "outputFile." + attrs.Extension,
				Required:    true,
				Verb:        models.VerbPut,
			},
		},
	}
	if attrs.Script != "" {
		activity.Settings = map[string]models.Setting{"script": {Value: attrs.Script}}
	}
	return activity
}

// DeleteAccount removes every app bundle and activity of the account.
func (r *Registrar) DeleteAccount(ctx context.Context) error {
	if err := r.api.DeleteAccount(ctx); err != nil {
		return r.fail(err, "failed to delete account")
	}
	r.logger.Warn().Str("nickname", r.nickname).Msg("deleted all app bundles and activities")
	return nil
}

func (r *Registrar) fail(err error, stage string) error {
	r.logger.Error().Err(err).Msg(stage)
	return errors.Wrap(err, stage)
}
