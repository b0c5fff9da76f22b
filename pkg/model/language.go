package model

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultLanguage labels the base narration text (English).
const DefaultLanguage = "default"

// LanguageInfo holds the code and names of a narration language.
type LanguageInfo struct {
	Code       string `json:"code"`        // e.g., "hi"
	Name       string `json:"name"`        // e.g., "Hindi"
	NativeName string `json:"native_name"` // e.g., "हिन्दी"
}

// DescribeLanguage resolves display names for a narration language code.
// Unknown or malformed codes fall back to the code itself.
func DescribeLanguage(code string) LanguageInfo {
	if code == DefaultLanguage || code == "" {
		return LanguageInfo{Code: DefaultLanguage, Name: "English", NativeName: "English"}
	}
	tag, err := language.Parse(code)
	if err != nil {
		return LanguageInfo{Code: code, Name: code, NativeName: code}
	}
	info := LanguageInfo{
		Code:       code,
		Name:       display.English.Tags().Name(tag),
		NativeName: display.Self.Name(tag),
	}
	if info.Name == "" {
		info.Name = code
	}
	if info.NativeName == "" {
		info.NativeName = info.Name
	}
	return info
}
