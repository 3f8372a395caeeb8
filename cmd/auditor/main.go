// Auditor audits documents against versioned compliance rule sets.
//
// Documents are split into chunks, every active rule of the selected rule
// set is matched against them, and the findings are stored as audit results
// with evidence and remediation guidance.
//
// Usage:
//
//	# Audit two documents synchronously
//	auditor run --rule-set insurance contracts/a.docx contracts/b.txt
//
//	# Validate rule set files
//	auditor rules validate rules/*.yaml
//
//	# Serve the HTTP API with the configured store
//	auditor serve --config /etc/auditor/config.yaml
//
//	# Inspect stored jobs
//	auditor jobs list --status FAILED
//	auditor jobs results <job-id> --output csv
package main

import "os"

func main() {
	os.Exit(Execute())
}
