package winevt

import (
	"strings"
)

// Primary language identifiers.
const (
	langNeutral    = 0x00
	langBulgarian  = 0x02
	langChinese    = 0x04
	langCzech      = 0x05
	langDanish     = 0x06
	langGerman     = 0x07
	langGreek      = 0x08
	langEnglish    = 0x09
	langSpanish    = 0x0a
	langFinnish    = 0x0b
	langFrench     = 0x0c
	langHungarian  = 0x0e
	langIcelandic  = 0x0f
	langItalian    = 0x10
	langJapanese   = 0x11
	langKorean     = 0x12
	langDutch      = 0x13
	langNorwegian  = 0x14
	langPolish     = 0x15
	langPortuguese = 0x16
	langRomanian   = 0x18
	langRussian    = 0x19
	langCroatian   = 0x1a
	langSlovak     = 0x1b
	langSwedish    = 0x1d
	langTurkish    = 0x1f
	langSlovenian  = 0x24
)

const sublangDefault = 0x01

func makeLangID(primary, sub uint16) uint16 {
	return sub<<10 | primary
}

// Locale selects the language message templates are rendered in.
type Locale struct {
	Code        string
	LangID      uint16
	Description string
}

// LCID returns the locale identifier passed to EvtOpenPublisherMetadata.
func (l Locale) LCID() uint32 {
	return uint32(l.LangID)
}

// NeutralLocale lets the OS pick the message language.
var NeutralLocale = Locale{Code: "neutral", LangID: makeLangID(langNeutral, 0), Description: "Default"}

var locales = []Locale{
	{"bg_BG", makeLangID(langBulgarian, sublangDefault), "Bulgarian"},
	{"zh_CN", makeLangID(langChinese, 0x02), "Chinese (Simplified)"},
	{"zh_TW", makeLangID(langChinese, 0x01), "Chinese (Traditional)"},
	{"zh_HK", makeLangID(langChinese, 0x03), "Chinese (Hong Kong)"},
	{"zh_SG", makeLangID(langChinese, 0x04), "Chinese (Singapore)"},
	{"hr_HR", makeLangID(langCroatian, sublangDefault), "Croatian"},
	{"cs_CZ", makeLangID(langCzech, sublangDefault), "Czech"},
	{"da_DK", makeLangID(langDanish, sublangDefault), "Danish"},
	{"nl_NL", makeLangID(langDutch, 0x01), "Dutch"},
	{"nl_BE", makeLangID(langDutch, 0x02), "Dutch (Belgium)"},
	{"en_US", makeLangID(langEnglish, 0x01), "English (United States)"},
	{"en_GB", makeLangID(langEnglish, 0x02), "English (United Kingdom)"},
	{"en_AU", makeLangID(langEnglish, 0x03), "English (Australia)"},
	{"en_CA", makeLangID(langEnglish, 0x04), "English (Canada)"},
	{"en_NZ", makeLangID(langEnglish, 0x05), "English (New Zealand)"},
	{"en_IE", makeLangID(langEnglish, 0x06), "English (Ireland)"},
	{"fi_FI", makeLangID(langFinnish, sublangDefault), "Finnish"},
	{"fr_FR", makeLangID(langFrench, 0x01), "French"},
	{"fr_BE", makeLangID(langFrench, 0x02), "French (Belgium)"},
	{"fr_CA", makeLangID(langFrench, 0x03), "French (Canada)"},
	{"fr_CH", makeLangID(langFrench, 0x04), "French (Switzerland)"},
	{"de_DE", makeLangID(langGerman, 0x01), "German"},
	{"de_CH", makeLangID(langGerman, 0x02), "German (Switzerland)"},
	{"de_AT", makeLangID(langGerman, 0x03), "German (Austria)"},
	{"el_GR", makeLangID(langGreek, sublangDefault), "Greek"},
	{"hu_HU", makeLangID(langHungarian, sublangDefault), "Hungarian"},
	{"is_IS", makeLangID(langIcelandic, sublangDefault), "Icelandic"},
	{"it_IT", makeLangID(langItalian, 0x01), "Italian"},
	{"it_CH", makeLangID(langItalian, 0x02), "Italian (Switzerland)"},
	{"ja_JP", makeLangID(langJapanese, sublangDefault), "Japanese"},
	{"ko_KO", makeLangID(langKorean, sublangDefault), "Korean"},
	{"no_NO", makeLangID(langNorwegian, 0x01), "Norwegian (Bokmal)"},
	{"nb_NO", makeLangID(langNorwegian, 0x01), "Norwegian (Bokmal)"},
	{"nn_NO", makeLangID(langNorwegian, 0x02), "Norwegian (Nynorsk)"},
	{"pl_PL", makeLangID(langPolish, sublangDefault), "Polish"},
	{"pt_PT", makeLangID(langPortuguese, 0x02), "Portuguese"},
	{"pt_BR", makeLangID(langPortuguese, 0x01), "Portuguese (Brazil)"},
	{"ro_RO", makeLangID(langRomanian, sublangDefault), "Romanian"},
	{"ru_RU", makeLangID(langRussian, sublangDefault), "Russian"},
	{"sk_SK", makeLangID(langSlovak, sublangDefault), "Slovak"},
	{"sl_SI", makeLangID(langSlovenian, sublangDefault), "Slovenian"},
	{"es_ES", makeLangID(langSpanish, 0x01), "Spanish"},
	{"es_ES_T", makeLangID(langSpanish, 0x01), "Spanish (Traditional Sort)"},
	{"es_MX", makeLangID(langSpanish, 0x02), "Spanish (Mexico)"},
	{"es_ES_M", makeLangID(langSpanish, 0x03), "Spanish (Modern Sort)"},
	{"sv_SE", makeLangID(langSwedish, sublangDefault), "Swedish"},
	{"tr_TR", makeLangID(langTurkish, sublangDefault), "Turkish"},
}

// LookupLocale finds a locale by code, ignoring case. An empty code selects
// NeutralLocale.
func LookupLocale(code string) (Locale, error) {
	if code == "" || strings.EqualFold(code, NeutralLocale.Code) {
		return NeutralLocale, nil
	}
	for _, l := range locales {
		if strings.EqualFold(l.Code, code) {
			return l, nil
		}
	}
	return Locale{}, &ConfigurationError{Field: "locale", Value: code}
}

// Locales returns every supported locale, excluding NeutralLocale.
func Locales() []Locale {
	out := make([]Locale, len(locales))
	copy(out, locales)
	return out
}
