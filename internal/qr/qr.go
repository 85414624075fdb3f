// Package qr turns scanned QR payloads into chat prompts and runs the frame
// scanning loop.
package qr

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	queryIDPattern = regexp.MustCompile(`id=([^&]+)`)
	pathIDPattern  = regexp.MustCompile(`/product/([^/?]+)`)
)

// ExtractProductID pulls a product identifier out of a QR payload. Payloads
// mentioning "product" or "id=" are matched against an id= query parameter,
// then a /product/<id> path segment. Anything else, including a payload that
// matches neither pattern, is returned verbatim.
func ExtractProductID(payload string) string {
	if !strings.Contains(payload, "product") && !strings.Contains(payload, "id=") {
		return payload
	}
	if m := queryIDPattern.FindStringSubmatch(payload); m != nil {
		return m[1]
	}
	if m := pathIDPattern.FindStringSubmatch(payload); m != nil {
		return m[1]
	}
	return payload
}

// Prompt folds the product identifier from payload into a question for the
// assistant.
func Prompt(payload string) string {
	id := strings.TrimSpace(ExtractProductID(payload))
	if id == "" {
		return ""
	}
	return fmt.Sprintf("I scanned the QR code for product %s. Can you tell me about this product?", id)
}
