package summary

import (
	"regexp"
	"strings"
)

// phrase emits text when any pattern matches. When refine matches too,
// refined replaces text.
type phrase struct {
	any     []*regexp.Regexp
	text    string
	refine  *regexp.Regexp
	refined string
}

func re(s string) *regexp.Regexp { return regexp.MustCompile(s) }

// groups holds one first-match phrase list per item, in item order.
var groups = [][]phrase{
	{ // grooming
		{any: []*regexp.Regexp{re(`\bgroom(ing)?[^.]*no physical help|groom(ing)?[^.]*without assistance|groom(ing)?[^.]*independent(ly)?`)}, text: "Grooming: independent."},
		{any: []*regexp.Regexp{re(`\bgroom(ing)?[^.]*after setup|after setup[^.]*groom(ing)?`)}, text: "Grooming: independent after setup."},
		{any: []*regexp.Regexp{re(`(assist|help)[^.]*groom`)}, text: "Grooming: needs assistance."},
		{any: []*regexp.Regexp{re(`(depends entirely|totally dependent)[^.]*groom|groom[^.]*depends entirely`)}, text: "Grooming: totally dependent."},
	},
	{ // upper body dressing
		{any: []*regexp.Regexp{re(`upper[^.]*needs (help|assistance) to put on`)}, text: "Upper-body dressing: needs help to put on."},
		{any: []*regexp.Regexp{re(`upper[^.]*?(laid out|handed)`)}, text: "Upper-body dressing: independent if clothing is laid out/handed."},
		{any: []*regexp.Regexp{re(`upper[^.]*without assistance|can get clothes and dress without assistance`)}, text: "Upper-body dressing: independent."},
		{any: []*regexp.Regexp{re(`upper[^.]*totally dependent|upper[^.]*depends entirely`)}, text: "Upper-body dressing: totally dependent."},
	},
	{ // lower body dressing
		{
			any: []*regexp.Regexp{
				re(`(partial assistance|needs help)[^.]*\b(socks?|shoes?)\b`),
				re(`lower[^.]*needs (help|assistance) to put on`),
			},
			text: "Lower-body dressing: needs help for socks/shoes.",
		},
		{any: []*regexp.Regexp{re(`lower[^.]*?(laid out|handed)`)}, text: "Lower-body dressing: independent if clothing/shoes are laid out."},
		{any: []*regexp.Regexp{re(`lower[^.]*without assistance|lower[^.]*independent(ly)?`)}, text: "Lower-body dressing: independent."},
		{any: []*regexp.Regexp{re(`lower[^.]*totally dependent|lower[^.]*depends entirely`)}, text: "Lower-body dressing: totally dependent."},
	},
	{ // bathing
		{any: []*regexp.Regexp{re(`bathed entirely by another person`)}, text: "Bathing: totally bathed by another person."},
		{
			any:     []*regexp.Regexp{re(`bathe[^.]*sink[^.]*chair|seated[^.]*sink`)},
			text:    "Bathing: independent at sink while seated on a chair.",
			refine:  re(`needs (help|assistance)[^.]*\b(back|lower (leg|legs))\b`),
			refined: "Bathing: at sink seated, needs assistance for back/lower legs.",
		},
		{any: []*regexp.Regexp{re(`contact guard[^.]*?(step in|step out|in and out)|intermittent (assist|assistance|supervision)`)}, text: "Bathing: intermittent assistance (e.g., for stepping in/out)."},
		{any: []*regexp.Regexp{re(`bath(es)? independently in (the )?shower[^.]*\b(grab bars?|non[- ]?slip mat|shower chair)\b`)}, text: "Bathing: independent in shower with devices (grab bars/non-slip/shower chair)."},
		{any: []*regexp.Regexp{re(`bath(es)? independently in (the )?shower`)}, text: "Bathing: independent in shower."},
		{any: []*regexp.Regexp{re(`cannot safely use (the )?shower`)}, text: "Bathing: cannot safely use shower."},
	},
	{ // toilet transferring
		{any: []*regexp.Regexp{re(`toilet transfers? (are )?independent|independent[^.]*toilet transfers?`)}, text: "Toilet transfers: independent (devices allowed, e.g., grab bars)."},
		{any: []*regexp.Regexp{re(`bedside commode`)}, text: "Toilet transfers: uses bedside commode."},
		{any: []*regexp.Regexp{re(`(reminded|assisted|supervised)[^.]*toilet transfers?|toilet transfers?[^.]*\b(reminded|assisted|supervised)\b`)}, text: "Toilet transfers: requires supervision/assistance."},
		{any: []*regexp.Regexp{re(`(bedpan|urinal)[^.]*independent(ly)?`)}, text: "Toilet: uses bedpan/urinal independently."},
	},
	{ // bed and chair transfers
		{any: []*regexp.Regexp{re(`minimal assistance[^.]*\b(transfer|bed to chair|chair to bed)\b`)}, text: "Transfers (bed↔chair): minimal assistance required."},
		{any: []*regexp.Regexp{re(`bear weight[^.]*pivot[^.]*cannot (complete )?transfer`)}, text: "Transfers: bears weight/pivots but cannot complete transfer independently."},
		{any: []*regexp.Regexp{re(`\bindependent(ly)?\b[^.]*\b(transfer|bed to chair|chair to bed)\b`)}, text: "Transfers: independent."},
		{any: []*regexp.Regexp{re(`bedfast[^.]*unable to transfer[^.]*unable to turn|unable to turn[^.]*bedfast`)}, text: "Transfers: bedfast, unable to transfer or turn."},
	},
	{ // ambulation
		{any: []*regexp.Regexp{re(`bedfast`)}, text: "Locomotion: bedfast."},
		{any: []*regexp.Regexp{re(`chair[-\s]?fast[^.]*wheel(s)? self independently|able to wheel self independently`)}, text: "Locomotion: wheelchair independent on level surfaces."},
		{
			any:     []*regexp.Regexp{re(`\b(rolling )?walker\b|crutches`)},
			text:    "Ambulation: uses walker.",
			refine:  re(`(cues|supervision).*(stairs|uneven)`),
			refined: "Ambulation: walker; requires supervision/cues for stairs/uneven surfaces.",
		},
		{any: []*regexp.Regexp{re(`\b(cane|one-handed device)\b`)}, text: "Ambulation: independent with one-handed device (cane/hemi-walker)."},
		{any: []*regexp.Regexp{re(`\bindependent(ly)?\b[^.]*\b(walk|ambulat)`)}, text: "Ambulation: independent without device."},
	},
}

var (
	distancePattern = re(`(\b\d{2,3}\b|\b\d+\s?(feet|ft|meters|m)\b)`)
	riskPattern     = re(`fall(s)? risk|unstead(y|iness)|safety|fatigue`)
	whitespace      = re(`\s+`)
	sentenceEnd     = re(`[.?!]\s+`)
	listMarker      = re(`^[-•*]\s*`)
)

func (p phrase) match(t string) (string, bool) {
	for _, r := range p.any {
		if !r.MatchString(t) {
			continue
		}
		if p.refine != nil && p.refine.MatchString(t) {
			return p.refined, true
		}
		return p.text, true
	}
	return "", false
}

// Heuristic builds bullets from clinical keywords without any model. Item
// bullets come first, then distance and risk notes, then transcript
// sentences until the summary holds maxBullets lines.
func Heuristic(transcript string) string {
	t := strings.ToLower(transcript)
	var bullets []string

	for _, group := range groups {
		for _, p := range group {
			if text, ok := p.match(t); ok {
				bullets = append(bullets, text)
				break
			}
		}
	}

	if d := distancePattern.FindString(t); d != "" {
		bullets = append(bullets, "Distance/Context: mentions "+d+".")
	}
	if riskPattern.MatchString(t) {
		bullets = append(bullets, "Risk/Plan: safety cues, fall risk or fatigue noted.")
	}

	for _, s := range splitSentences(transcript) {
		if len(bullets) >= maxBullets {
			break
		}
		short := strings.TrimSpace(listMarker.ReplaceAllString(s, ""))
		if short == "" || covered(bullets, short) {
			continue
		}
		if !strings.HasSuffix(short, ".") {
			short += "."
		}
		bullets = append(bullets, short)
	}

	if len(bullets) == 0 {
		if raw := strings.TrimSpace(transcript); raw != "" {
			bullets = append(bullets, raw)
		}
	}
	return toBullets(bullets)
}

// covered reports whether a bullet already contains the sentence opening.
func covered(bullets []string, sentence string) bool {
	prefix := strings.ToLower(firstRunes(sentence, 20))
	for _, b := range bullets {
		if strings.Contains(strings.ToLower(b), prefix) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	text = whitespace.ReplaceAllString(text, " ")
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
