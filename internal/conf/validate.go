// validate.go: validation of loaded settings.
package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSettings checks the loaded settings for obviously broken values.
// Validation errors are collected so a misconfigured file reports everything
// wrong with it at once.
func ValidateSettings(settings *Settings) error {
	var errs []string

	if err := validateScannerSettings(&settings.Scanner); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateUploadSettings(&settings.Upload); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBackendSettings(&settings.Backend); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCaptureSettings(&settings.Capture); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateScannerSettings(s *ScannerSettings) error {
	if s.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be positive, got %v", s.Interval)
	}
	if s.InputSize <= 0 {
		return fmt.Errorf("scanner.inputsize must be positive, got %d", s.InputSize)
	}
	if s.LeafThreshold < 0 || s.LeafThreshold > 1 {
		return fmt.Errorf("scanner.leafthreshold must be in [0,1], got %v", s.LeafThreshold)
	}
	if s.PestThreshold < 0 || s.PestThreshold > 1 {
		return fmt.Errorf("scanner.pestthreshold must be in [0,1], got %v", s.PestThreshold)
	}
	if s.DefaultPadding < 0 || s.DefaultPadding > 1 {
		return fmt.Errorf("scanner.defaultpadding must be in [0,1], got %v", s.DefaultPadding)
	}
	return nil
}

func validateUploadSettings(s *UploadSettings) error {
	if s.BatchSize <= 0 {
		return fmt.Errorf("upload.batchsize must be positive, got %d", s.BatchSize)
	}
	if s.MaxRetries <= 0 {
		return fmt.Errorf("upload.maxretries must be positive, got %d", s.MaxRetries)
	}
	if s.RetryDelay < 0 {
		return fmt.Errorf("upload.retrydelay must not be negative, got %v", s.RetryDelay)
	}
	if s.BatchDelay < 0 {
		return fmt.Errorf("upload.batchdelay must not be negative, got %v", s.BatchDelay)
	}
	return nil
}

func validateBackendSettings(s *BackendSettings) error {
	if s.BaseURL == "" {
		return fmt.Errorf("backend.baseurl must not be empty")
	}
	if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
		return fmt.Errorf("backend.baseurl is not a valid URL: %w", err)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %v", s.Timeout)
	}
	if s.DefaultPlantCount < 0 {
		return fmt.Errorf("backend.defaultplantcount must not be negative, got %d", s.DefaultPlantCount)
	}
	return nil
}

func validateCaptureSettings(s *CaptureSettings) error {
	if s.Path == "" {
		return fmt.Errorf("capture.path must not be empty")
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpegquality must be in [1,100], got %d", s.JPEGQuality)
	}
	return nil
}
