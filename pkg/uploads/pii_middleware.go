package uploads

import (
	"context"
	"regexp"
)

var (
	emailRegexp = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	// A phone number needs a country code or area-code grouping, so runs of
	// plain figures such as "2019 2020 2021" are left alone.
	phoneRegexp = regexp.MustCompile(`\+\d{1,3}(?:[ .-]?\d{2,4}){2,5}\b|(?:\(\d{2,4}\)\s?|\b\d{3}[.-])\d{3}[ .-]\d{4}\b`)
)

// PIIRedactor masks e-mail addresses and phone numbers before chunks are
// embedded and stored. Enabled with ingest.redact_pii.
type PIIRedactor struct {
	Replacement string
}

func (r PIIRedactor) Process(_ context.Context, chunk *Chunk) error {
	if chunk == nil {
		return nil
	}
	replacement := r.Replacement
	if replacement == "" {
		replacement = "[redacted]"
	}
	redacted := emailRegexp.ReplaceAllString(chunk.Text, replacement)
	redacted = phoneRegexp.ReplaceAllString(redacted, replacement)
	if redacted == chunk.Text {
		return nil
	}
	chunk.Text = redacted
	if chunk.Metadata == nil {
		chunk.Metadata = map[string]string{}
	}
	chunk.Metadata["pii_redacted"] = "true"
	chunk.Metadata["checksum"] = checksum(redacted)
	return nil
}
