package services

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/AnshRaj112/bazaar-backend/internal/models"
)

// Terms that commonly mark prohibited goods or payment scams in classifieds.
// Matching is advisory: flagged listings still go through the normal queue.
var screenedTerms = []string{
	"counterfeit",
	"replica",
	"fake id",
	"passport",
	"firearm",
	"ammo",
	"ammunition",
	"cocaine",
	"heroin",
	"meth",
	"stolen",
	"western union",
	"wire transfer",
	"gift card",
	"moneygram",
	"crypto only",
	"advance payment",
	"pay upfront",
}

var (
	obfuscation = strings.NewReplacer(
		"@", "a",
		"4", "a",
		"3", "e",
		"!", "i",
		"1", "i",
		"0", "o",
		"$", "s",
		"5", "s",
		"7", "t",
		"+", "t",
		"а", "a", // Cyrillic
		"е", "e",
		"і", "i",
		"о", "o",
		"р", "p",
	)
	spaceRegex = regexp.MustCompile(`\s+`)

	canonicalTerms = func() map[string]string {
		out := make(map[string]string, len(screenedTerms))
		for _, t := range screenedTerms {
			out[CleanText(t)] = t
		}
		return out
	}()
)

// CleanText lowercases text, undoes common character substitutions, drops
// punctuation and collapses letter runs, so "C0UNT3RF3!T" and "counterfeit"
// compare equal.
func CleanText(text string) string {
	cleaned := obfuscation.Replace(strings.ToLower(text))

	var b strings.Builder
	for _, r := range cleaned {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	cleaned = collapseRepeats(b.String())
	return strings.TrimSpace(spaceRegex.ReplaceAllString(cleaned, " "))
}

// collapseRepeats reduces repeated letters to one: "fffake" -> "fake".
func collapseRepeats(text string) string {
	var b strings.Builder
	var last rune
	lastWasLetter := false
	for _, r := range text {
		isLetter := unicode.IsLetter(r)
		if isLetter && lastWasLetter && r == last {
			continue
		}
		b.WriteRune(r)
		last = r
		lastWasLetter = isLetter
	}
	return b.String()
}

// containsTerm matches single words on word boundaries ("skill" is not "kill")
// and phrases by substring.
func containsTerm(cleaned string, words map[string]struct{}, term string) bool {
	if !strings.Contains(term, " ") {
		_, ok := words[term]
		return ok
	}
	return strings.Contains(" "+cleaned+" ", " "+term+" ")
}

// ScreenText returns the screened terms found in text, sorted.
func ScreenText(text string) []string {
	cleaned := CleanText(text)
	if cleaned == "" {
		return nil
	}
	words := make(map[string]struct{})
	for _, w := range strings.Fields(cleaned) {
		words[w] = struct{}{}
	}
	var found []string
	for canonical, term := range canonicalTerms {
		if containsTerm(cleaned, words, canonical) {
			found = append(found, term)
		}
	}
	sort.Strings(found)
	return found
}

// ScreenListing screens the user-written fields of a listing.
func ScreenListing(l models.Listing) []string {
	return ScreenText(l.Title + "\n" + l.Description + "\n" + l.Contact)
}

// PendingItem is a moderation queue entry with advisory screening flags.
type PendingItem struct {
	models.Listing
	Flags []string `json:"flags"`
}

func withFlags(listings []models.Listing) []PendingItem {
	out := make([]PendingItem, 0, len(listings))
	for _, l := range listings {
		flags := ScreenListing(l)
		if flags == nil {
			flags = []string{}
		}
		out = append(out, PendingItem{Listing: l, Flags: flags})
	}
	return out
}
