// Package guard enforces the no off-platform contact policy on message text.
//
// HardReject covers patterns that are near-certain contact sharing and must
// block persistence. SoftFlag covers words that are only suspicious; those
// messages are stored with IsFiltered set and the sender gets Warning back.
// Neither check alters the text.
package guard

import (
	"regexp"
	"strings"
)

// Warning is returned to the sender of a soft-flagged message.
const Warning = "Your message may contain contact details. Sharing phone numbers, emails or off-platform links is against our policy and may lead to account restrictions."

// Reasons reported by HardReject.
const (
	ReasonPhone    = "phone_number"
	ReasonURL      = "url"
	ReasonEmail    = "email_address"
	ReasonPlatform = "external_platform"
)

var (
	tenDigits    = regexp.MustCompile(`\d{10}`)
	phoneJoiners = regexp.MustCompile(`[\s\-().+]`)
	urlPattern   = regexp.MustCompile(`(?i)(?:https?|ftp)://\S+|www\.\S*`)
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
)

// platformTerms are messaging platforms and link shorteners that are always
// blocked. whatsapp on its own is only a soft keyword.
var platformTerms = []string{
	"telegram",
	"t.me/",
	"wa.me",
	"skype",
	"instagram",
	"facebook",
	"fb.me",
	"snapchat",
	"discord",
	"linkedin.com",
	"twitter.com",
	"bit.ly",
	"wechat",
}

var softTerms = []string{
	"phone",
	"number",
	"whatsapp",
	"email",
	"e-mail",
	"address",
	"contact",
	"mobile",
	"gmail",
	"call me",
}

// HardReject reports whether text must be refused, and why.
func HardReject(text string) (bool, string) {
	if text == "" {
		return false, ""
	}
	if tenDigits.MatchString(text) || tenDigits.MatchString(phoneJoiners.ReplaceAllString(text, "")) {
		return true, ReasonPhone
	}
	if urlPattern.MatchString(text) {
		return true, ReasonURL
	}
	if emailPattern.MatchString(text) {
		return true, ReasonEmail
	}
	lower := strings.ToLower(text)
	for _, term := range platformTerms {
		if strings.Contains(lower, term) {
			return true, ReasonPlatform
		}
	}
	return false, ""
}

// SoftFlag reports whether text contains a suspicious keyword.
func SoftFlag(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range softTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
