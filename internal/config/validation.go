package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docpipe/internal/fingerprint"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/storage"
	"git.home.luguber.info/inful/docpipe/internal/textenc"
)

// Validate checks cfg after defaults have been applied and canonicalizes
// enumerated fields.
func Validate(cfg *RunConfig) error {
	v := &runValidator{cfg: cfg}
	for _, check := range []func() error{
		v.validateLogging,
		v.validateCache,
		v.validateEncoding,
		v.validateGlobals,
		v.validatePaths,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type runValidator struct {
	cfg *RunConfig
}

func invalid(field, msg string, cause error) error {
	b := derrors.ConfigError(fmt.Sprintf("invalid %s: %s", field, msg)).WithContext("field", field)
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b.Build()
}

func (v *runValidator) validateLogging() error {
	lvl, err := logLevelNormalizer.NormalizeWithValidation(string(v.cfg.LogLevel))
	if err != nil {
		return invalid("log_level", fmt.Sprintf("%q is not one of %v", v.cfg.LogLevel, logLevelNormalizer.ValidValues()), err)
	}
	v.cfg.LogLevel = lvl
	format, err := logFormatNormalizer.NormalizeWithValidation(string(v.cfg.LogFormat))
	if err != nil {
		return invalid("log_format", fmt.Sprintf("%q is not one of %v", v.cfg.LogFormat, logFormatNormalizer.ValidValues()), err)
	}
	v.cfg.LogFormat = format
	return nil
}

func (v *runValidator) validateCache() error {
	alg, err := fingerprint.ParseAlgorithm(v.cfg.HashFunction)
	if err != nil {
		return invalid("hash_function", err.Error(), err)
	}
	v.cfg.HashFunction = string(alg)

	switch strings.ToLower(v.cfg.DBAlias) {
	case storage.BackendFS, storage.BackendSQLite, storage.BackendMemory:
		v.cfg.DBAlias = strings.ToLower(v.cfg.DBAlias)
	default:
		return invalid("db_alias", fmt.Sprintf("unknown cache backend %q", v.cfg.DBAlias), nil)
	}
	if strings.ContainsRune(v.cfg.DBFile, filepath.Separator) {
		return invalid("db_file", "must be a file name inside the artifacts directory", nil)
	}
	if v.cfg.Workers < 1 {
		return invalid("workers", "must be at least 1", nil)
	}
	return nil
}

func (v *runValidator) validateEncoding() error {
	if _, err := textenc.New(v.cfg.Encoding); err != nil {
		return err
	}
	return nil
}

func (v *runValidator) validateGlobals() error {
	if _, err := v.cfg.GlobalsMap(); err != nil {
		return invalid("globals", err.Error(), err)
	}
	return nil
}

func (v *runValidator) validatePaths() error {
	for field, p := range map[string]string{
		"artifacts_dir": v.cfg.ArtifactsDir,
		"log_dir":       v.cfg.LogDir,
		"output_dir":    v.cfg.OutputDir,
	} {
		if strings.TrimSpace(p) == "" {
			return invalid(field, "must not be empty", nil)
		}
		if !filepath.IsAbs(p) && filepath.Clean(p) == "." {
			return invalid(field, "must not be the project root", nil)
		}
	}
	return nil
}
