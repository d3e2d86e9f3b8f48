package capture

import (
	"errors"
	"strings"

	"vocalog/internal/domain"
)

// ClassifyStreamError maps a stream-acquisition failure onto the capture
// error taxonomy. The returned permission state is "" when the failure says
// nothing about permission.
func ClassifyStreamError(err error) (*domain.CaptureError, domain.PermissionState) {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return domain.NewCaptureError(domain.CapturePermissionDenied), domain.PermissionDenied
	case errors.Is(err, domain.ErrNoMicrophone):
		return domain.NewCaptureError(domain.CaptureNoMicrophone), ""
	case errors.Is(err, domain.ErrUnsupported):
		return domain.NewCaptureError(domain.CaptureBrowserUnsupported), domain.PermissionUnsupported
	}

	// Fall back to message inspection for platform errors that were not
	// wrapped around the sentinels.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return domain.NewCaptureError(domain.CapturePermissionDenied), domain.PermissionDenied
	case strings.Contains(msg, "no device") || strings.Contains(msg, "not found"):
		return domain.NewCaptureError(domain.CaptureNoMicrophone), ""
	default:
		return domain.NewCaptureError(domain.CaptureRecordingError), ""
	}
}
