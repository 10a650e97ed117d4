package validation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"alterego/core"
	"alterego/db"
	"alterego/styles"
)

// ErrDirtySchema reports a migration that failed partway.
var ErrDirtySchema = errors.New("database schema is dirty")

// endpointTimeout bounds the endpoint reachability check.
const endpointTimeout = 5 * time.Second

// Options tune StartupChecks.
type Options struct {
	// Memory skips the database check (serve --memory)
	Memory bool
	// Endpoint sends a HEAD request to TRANSFORM_URL for the http provider
	Endpoint bool
	// Client is used by the endpoint check (default: cfg.HTTPClient())
	Client *http.Client
}

// StartupChecks assembles the doctor suite. When loadErr is set the
// configuration check fails and the checks that need a config are skipped.
func StartupChecks(cfg *core.Config, loadErr error, opts Options) *Suite {
	s := NewSuite("AlterEgo startup checks")
	s.Add("Configuration", CheckConfig(cfg, loadErr))
	if cfg == nil || loadErr != nil {
		skip := func(context.Context) StepResult { return Skipped("configuration did not load") }
		s.Add("Data directory", skip)
		s.Add("Style catalog", skip)
		s.Add("Database", skip)
		s.Add("Transform endpoint", skip)
		return s
	}

	s.Add("Data directory", CheckDataDir(cfg.DataDir))
	s.Add("Style catalog", CheckStyles(cfg.StylesFile))
	if opts.Memory {
		s.Add("Database", func(context.Context) StepResult { return Skipped("in-memory store") })
	} else {
		s.Add("Database", CheckDatabase(cfg.DBPath))
	}
	if opts.Endpoint {
		client := opts.Client
		if client == nil {
			client = cfg.HTTPClient()
		}
		s.Add("Transform endpoint", CheckEndpoint(cfg, client))
	} else {
		s.Add("Transform endpoint", func(context.Context) StepResult { return Skipped("endpoint check disabled") })
	}
	return s
}

// CheckConfig reports the outcome of core.LoadConfig.
func CheckConfig(cfg *core.Config, loadErr error) CheckFunc {
	return func(context.Context) StepResult {
		if loadErr != nil {
			code := core.GetErrorCode(loadErr)
			if code == "" {
				code = "INVALID_CONFIG"
			}
			return Failed(code, loadErr)
		}
		if cfg == nil {
			return Failed("no configuration", errors.New("configuration is nil"))
		}
		if err := cfg.Validate(); err != nil {
			return Failed(core.GetErrorCode(err), err)
		}
		return Passed(fmt.Sprintf("provider %s, port %d", cfg.Provider, cfg.Port))
	}
}

// CheckDataDir creates dir if needed and proves it is writable.
func CheckDataDir(dir string) CheckFunc {
	return func(context.Context) StepResult {
		if dir == "" {
			return Failed("DATA_DIR is empty", core.ErrMissingConfig("DATA_DIR"))
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Failed("cannot create "+dir, err)
		}
		f, err := os.CreateTemp(dir, ".doctor-*")
		if err != nil {
			return Failed(dir+" is not writable", err)
		}
		name := f.Name()
		f.Close()
		os.Remove(name)
		return Passed(dir)
	}
}

// CheckStyles loads the catalog the service would use.
func CheckStyles(path string) CheckFunc {
	return func(context.Context) StepResult {
		c, err := styles.LoadCatalog(path)
		if err != nil {
			return Failed("catalog rejected", err)
		}
		source := "built-in"
		if path != "" {
			source = path
		}
		return Passed(fmt.Sprintf("%s: %d defaults, %d in pool", source, len(c.Defaults()), len(c.Pool())))
	}
}

// CheckDatabase reports the schema version of an existing database. A
// missing file passes; it is created and migrated on first start.
func CheckDatabase(path string) CheckFunc {
	return func(context.Context) StepResult {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return Passed("not created yet, migrations run on first start")
		} else if err != nil {
			return Failed("cannot stat "+path, err)
		}
		version, dirty, err := db.MigrationVersionFromPath(path)
		if err != nil {
			return Failed("cannot read schema version", err)
		}
		if dirty {
			return Failed(fmt.Sprintf("schema version %d", version), ErrDirtySchema)
		}
		return Passed(fmt.Sprintf("schema version %d", version))
	}
}

// CheckEndpoint sends a HEAD request to TRANSFORM_URL for the http provider. Any HTTP
// answer below 500 counts as reachable; the backend only accepts POST.
// Failures are warnings since the backend may come up after us.
func CheckEndpoint(cfg *core.Config, client *http.Client) CheckFunc {
	return func(ctx context.Context) StepResult {
		if cfg.Provider != core.ProviderHTTP {
			return Skipped("provider " + cfg.Provider + " uses its SDK endpoint")
		}
		ctx, cancel := context.WithTimeout(ctx, endpointTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.TransformURL, nil)
		if err != nil {
			return Failed("bad TRANSFORM_URL", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return Warning("unreachable", err)
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return Warning(fmt.Sprintf("HTTP %d", resp.StatusCode),
				fmt.Errorf("transform backend answered %s", resp.Status))
		}
		return Passed(fmt.Sprintf("reachable, HTTP %d", resp.StatusCode))
	}
}
