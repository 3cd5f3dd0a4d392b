// Package i18n translates keyfold's own CLI messages.
//
// It wraps gotext with T() and N(). Translations are embedded from
// locales/{lang}/LC_MESSAGES/keyfold.po and loaded once by Init().
package i18n

import (
	"embed"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/leonelquinteros/gotext"
	"golang.org/x/text/language"
)

// Directory structure: locales/{lang}/LC_MESSAGES/keyfold.po
//
//go:embed all:locales
var locales embed.FS

// domain is the gettext domain name.
const domain = "keyfold"

// po is the active catalog; nil means untranslated.
var po *gotext.Locale

// active is the language Init selected.
var active = "en"

// Init selects the translation closest to lang. An empty lang is taken
// from LANGUAGE, LC_ALL, LC_MESSAGES or LANG, as GNU gettext does. Without
// a usable translation, messages pass through untranslated.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	active = match(lang, Available())
	if active == "en" {
		po = nil
		return
	}
	po = gotext.NewLocaleFSWithPath(active, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Lang returns the language selected by Init.
func Lang() string { return active }

// Available lists the embedded translations, sorted.
func Available() []string {
	entries, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		if e.IsDir() {
			langs = append(langs, e.Name())
		}
	}
	sort.Strings(langs)
	return langs
}

// match returns the entry of available that best serves lang, or "en".
func match(lang string, available []string) string {
	lang, _, _ = strings.Cut(lang, ".")
	want, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil || len(available) == 0 {
		return "en"
	}
	tags := []language.Tag{language.English}
	for _, a := range available {
		tags = append(tags, language.Make(strings.ReplaceAll(a, "_", "-")))
	}
	_, idx, conf := language.NewMatcher(tags).Match(want)
	if idx == 0 || conf < language.High {
		return "en"
	}
	return available[idx-1]
}

// T translates msgid, or returns it unchanged.
func T(msgid string, vars ...any) string {
	if po == nil {
		if len(vars) > 0 {
			return gotext.Printf(msgid, vars...)
		}
		return msgid
	}
	return po.Get(msgid, vars...)
}

// N translates a message with plural forms.
func N(singular, plural string, n int, vars ...any) string {
	if po == nil {
		msg := plural
		if n == 1 {
			msg = singular
		}
		if len(vars) > 0 {
			return gotext.Printf(msg, vars...)
		}
		return msg
	}
	return po.GetN(singular, plural, n, vars...)
}

func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		// LANGUAGE can be a colon-separated list; take the first
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		// Strip encoding suffix (e.g. "zh_CN.UTF-8" -> "zh_CN")
		val, _, _ = strings.Cut(val, ".")
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
