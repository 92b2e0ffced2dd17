package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")

	ErrConfiguration     = errors.New("configuration error")
	ErrDiscovery         = errors.New("file discovery failed")
	ErrInvalidNaming     = errors.New("invalid expansion file name")
	ErrAuthentication    = errors.New("authentication failed")
	ErrAPI               = errors.New("publishing API error")
	ErrDuplicateArtifact = errors.New("file already exists")

	// ErrAmbiguousResponse marks a remote call that got no definitive
	// answer, e.g. a timeout; the call may or may not have been applied.
	ErrAmbiguousResponse = errors.New("no definitive response from publishing API")
)

// APIError carries the structured part of a remote failure across the
// client boundary.
type APIError struct {
	Op         string
	StatusCode int
	Messages   []string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if len(e.Messages) == 0 {
		b.WriteString(": the publishing API did not return any further information")
		if e.Err != nil {
			fmt.Fprintf(&b, " (%v)", e.Err)
		}
		return b.String()
	}
	b.WriteString(": ")
	b.WriteString(strings.Join(e.Messages, "; "))
	return b.String()
}

func (e *APIError) Unwrap() []error {
	errs := []error{ErrAPI}
	if e.StatusCode == 404 {
		errs = append(errs, ErrNotFound)
	}
	if e.StatusCode == 401 || e.StatusCode == 403 {
		errs = append(errs, ErrUnauthorized)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Report titles.
const (
	ReportUpload = "Upload failed"
	ReportAssign = "Track assignment failed"
)

// Report renders err as the multi-line failure report shown to users,
// headed by title.
func Report(title string, err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString(":\n")
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimRight(line, " ")
		if line == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(strings.TrimLeft(line, "*\t "))
		b.WriteString("\n")
	}
	if hint := reportHint(err); hint != "" {
		b.WriteString(hint)
		b.WriteString("\n")
	}
	return b.String()
}

func reportHint(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "Check that the service account credentials are valid and have access to the app."
	case errors.Is(err, ErrDuplicateArtifact):
		return "Increase the version code before uploading again."
	case errors.Is(err, ErrUnauthorized):
		return "The service account is not allowed to perform this operation."
	}
	return ""
}
