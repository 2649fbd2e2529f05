package usb

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// LangID is a 16-bit USB language identifier as sent in wIndex of a string
// request.
type LangID uint16

const (
	LangEnglishUS        LangID = 0x0409
	LangEnglishUK        LangID = 0x0809
	LangEnglishAustralia LangID = 0x0C09
	LangEnglishCanada    LangID = 0x1009
	LangGerman           LangID = 0x0407
	LangFrench           LangID = 0x040C
	LangFrenchCanada     LangID = 0x0C0C
	LangSpanish          LangID = 0x0C0A
	LangItalian          LangID = 0x0410
	LangPortugueseBrazil LangID = 0x0416
	LangPortuguese       LangID = 0x0816
	LangDutch            LangID = 0x0413
	LangSwedish          LangID = 0x041D
	LangPolish           LangID = 0x0415
	LangCzech            LangID = 0x0405
	LangHungarian        LangID = 0x040E
	LangTurkish          LangID = 0x041F
	LangRussian          LangID = 0x0419
	LangUkrainian        LangID = 0x0422
	LangJapanese         LangID = 0x0411
	LangKorean           LangID = 0x0412
	LangChinesePRC       LangID = 0x0804
	LangChineseTaiwan    LangID = 0x0404
)

var langTags = []struct {
	id  LangID
	tag language.Tag
}{
	{LangEnglishUS, language.AmericanEnglish},
	{LangEnglishUK, language.BritishEnglish},
	{LangEnglishAustralia, language.MustParse("en-AU")},
	{LangEnglishCanada, language.MustParse("en-CA")},
	{LangGerman, language.MustParse("de-DE")},
	{LangFrench, language.MustParse("fr-FR")},
	{LangFrenchCanada, language.CanadianFrench},
	{LangSpanish, language.MustParse("es-ES")},
	{LangItalian, language.MustParse("it-IT")},
	{LangPortugueseBrazil, language.BrazilianPortuguese},
	{LangPortuguese, language.EuropeanPortuguese},
	{LangDutch, language.MustParse("nl-NL")},
	{LangSwedish, language.MustParse("sv-SE")},
	{LangPolish, language.MustParse("pl-PL")},
	{LangCzech, language.MustParse("cs-CZ")},
	{LangHungarian, language.MustParse("hu-HU")},
	{LangTurkish, language.MustParse("tr-TR")},
	{LangRussian, language.MustParse("ru-RU")},
	{LangUkrainian, language.MustParse("uk-UA")},
	{LangJapanese, language.MustParse("ja-JP")},
	{LangKorean, language.MustParse("ko-KR")},
	{LangChinesePRC, language.SimplifiedChinese},
	{LangChineseTaiwan, language.TraditionalChinese},
}

var langMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(langTags))
	for i, l := range langTags {
		tags[i] = l.tag
	}
	return language.NewMatcher(tags)
}()

// ParseLangID accepts a hex identifier ("0x0409", "409") or a language tag
// ("en", "en-GB", "uk"). Tags are matched against the known identifiers.
func ParseLangID(s string) (LangID, error) {
	s = strings.TrimSpace(s)
	if h, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		return parseHexLangID(s, h)
	}
	tag, err := language.Parse(s)
	if err != nil {
		return parseHexLangID(s, s)
	}
	for _, l := range langTags {
		if l.tag == tag {
			return l.id, nil
		}
	}
	_, idx, conf := langMatcher.Match(tag)
	if conf == language.No {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
	}
	return langTags[idx].id, nil
}

func parseHexLangID(orig, h string) (LangID, error) {
	v, err := strconv.ParseUint(h, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLanguage, orig)
	}
	return LangID(v), nil
}

// Tag returns the language tag of a known identifier.
func (l LangID) Tag() (language.Tag, bool) {
	for _, t := range langTags {
		if t.id == l {
			return t.tag, true
		}
	}
	return language.Und, false
}

func (l LangID) String() string {
	if t, ok := l.Tag(); ok {
		return t.String()
	}
	return fmt.Sprintf("0x%04x", uint16(l))
}
