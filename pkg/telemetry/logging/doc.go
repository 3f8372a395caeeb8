// Package logging builds the process logger: a log/slog handler chain that
// adds audit identifiers from the context and masks personal data before
// records reach the JSON or text encoder.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json", RedactPII: true})
//	if err != nil {
//	    return err
//	}
//	ctx = logging.WithJobID(ctx, job.ID)
//	logger.InfoContext(ctx, "job started") // carries job_id
//
// # Redaction
//
// With RedactPII enabled, string attributes are scanned for e-mail
// addresses, mainland China mobile numbers, resident ID numbers, bank card
// numbers, bearer tokens and API keys. Attributes whose key names a secret
// (password, token, api_key, ...) are masked regardless of content.
package logging
