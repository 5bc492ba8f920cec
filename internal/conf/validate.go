package conf

import (
	"fmt"

	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// ValidateSettings checks the loaded configuration for values the pipeline
// cannot run without. Missing bot credentials or a missing store backend are
// configuration errors and fail fast at startup.
func ValidateSettings(s *Settings) error {
	if !s.Output.SQLite.Enabled && !s.Output.MySQL.Enabled {
		return errors.Newf("no output store enabled, enable output.sqlite or output.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Output.SQLite.Enabled && s.Output.MySQL.Enabled {
		return errors.Newf("both sqlite and mysql outputs enabled, pick one").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Output.SQLite.Enabled && s.Output.SQLite.Path == "" {
		return errors.Newf("output.sqlite.path must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.TNS.ArchiveURL == "" {
		return errors.Newf("tns.archiveurl must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.TNS.Timeout <= 0 {
		return errors.Newf("tns.timeout must be positive, got %d", s.TNS.Timeout).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.CrossMatch.Workers < 1 {
		return errors.Newf("crossmatch.workers must be at least 1, got %d", s.CrossMatch.Workers).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.CrossMatch.DESIRadiusArcsec <= 0 || s.CrossMatch.LensRadiusArcsec <= 0 {
		return errors.Newf("cross-match radii must be positive (desi=%.1f lens=%.1f)",
			s.CrossMatch.DESIRadiusArcsec, s.CrossMatch.LensRadiusArcsec).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Expiry.ThresholdDays < 1 {
		return errors.Newf("expiry.thresholddays must be at least 1, got %d", s.Expiry.ThresholdDays).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// RequireBotCredentials verifies that the TNS bot identity is configured.
// Only the fetch path needs these, so they are checked where used rather
// than at startup.
func (s *Settings) RequireBotCredentials() error {
	if s.TNS.BotID == 0 || s.TNS.BotName == "" || s.TNS.APIKey == "" {
		return errors.New(fmt.Errorf("TNS bot credentials not configured (tns.botid, tns.botname, tns.apikey)")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
