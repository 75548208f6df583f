// Package core provides the shared result and error types for wxprobe.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Attachment represents a debug artifact captured during a step
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot, hierarchy
	ContentType string `json:"contentType"` // MIME type: image/png, application/xml
	Path        string `json:"path"`        // File path relative to the run directory
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
	AttachmentHierarchy  = "hierarchy"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// NewHierarchyAttachment creates a UI hierarchy attachment
func NewHierarchyAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentHierarchy,
		ContentType: ContentTypeXML,
		Path:        path,
		Body:        data,
	}
}

// ArtifactConfig controls when artifacts are captured
type ArtifactConfig struct {
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure"` // Default: true
	CaptureOnSuccess bool `yaml:"captureOnSuccess" json:"captureOnSuccess"` // Default: false
	Screenshot       bool `yaml:"screenshot" json:"screenshot"`             // Default: true
	UIHierarchy      bool `yaml:"uiHierarchy" json:"uiHierarchy"`           // Default: true
}

// DefaultArtifactConfig returns the defaults: everything, on failure only.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		Screenshot:       true,
		UIHierarchy:      true,
	}
}

// ShouldCapture returns true if artifacts should be captured for the given status
func (c ArtifactConfig) ShouldCapture(status StepStatus) bool {
	switch status {
	case StatusFailed, StatusErrored:
		return c.CaptureOnFailure
	case StatusPassed, StatusWarned:
		return c.CaptureOnSuccess
	default:
		return false
	}
}

// ArtifactCollector captures debug artifacts from the device.
type ArtifactCollector interface {
	Screenshot(ctx context.Context) ([]byte, error)
	DumpHierarchy(ctx context.Context) (string, error)
}

// Capture collects the configured artifacts for a step and writes them into
// dir. Failures to capture are returned joined but never abort the run.
func (c ArtifactConfig) Capture(ctx context.Context, collector ArtifactCollector, dir, prefix string) ([]Attachment, error) {
	var (
		attachments []Attachment
		errs        []error
	)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	if c.Screenshot {
		data, err := collector.Screenshot(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("screenshot: %w", err))
		} else {
			name := prefix + "_screenshot.png"
			if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
				errs = append(errs, err)
			} else {
				attachments = append(attachments, NewScreenshotAttachment(name, data))
			}
		}
	}

	if c.UIHierarchy {
		xml, err := collector.DumpHierarchy(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("hierarchy: %w", err))
		} else {
			name := prefix + "_hierarchy.xml"
			if err := os.WriteFile(filepath.Join(dir, name), []byte(xml), 0o644); err != nil {
				errs = append(errs, err)
			} else {
				attachments = append(attachments, NewHierarchyAttachment(name, []byte(xml)))
			}
		}
	}

	return attachments, errors.Join(errs...)
}

// NullArtifactCollector is a no-op implementation for testing
type NullArtifactCollector struct{}

// Screenshot returns nil (no-op)
func (NullArtifactCollector) Screenshot(context.Context) ([]byte, error) { return nil, nil }

// DumpHierarchy returns an empty hierarchy (no-op)
func (NullArtifactCollector) DumpHierarchy(context.Context) (string, error) { return "", nil }
