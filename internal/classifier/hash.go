// Package classifier implements the website classification subprocess: fetch
// a domain's site, extract metadata, ask a local LLM whether the site matches
// a classification type, and emit a structured JSON verdict on stdout.
//
// The queue processor spawns one invocation per domain and parses stdout by
// the "result" tag; stderr carries diagnostics only.
package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PromptHash returns the content address of a prompt template, formatted
// "sha256:<64-hex>". The queue processor computes the same hash so the two
// sides can cross-check which prompt produced a verdict.
func PromptHash(content string) string {
	sum := sha256.Sum256([]byte(content))

	return fmt.Sprintf("sha256:%s", hex.EncodeToString(sum[:]))
}
