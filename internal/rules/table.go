package rules

import (
	"regexp"

	"github.com/sells-group/oasis-extract/internal/model"
)

// rule assigns code when any pattern matches. When guard is set it must also
// match somewhere in the transcript before patterns are consulted.
type rule struct {
	code     model.Code
	guard    *regexp.Regexp
	patterns []*regexp.Regexp
}

func re(expr string) *regexp.Regexp {
	return regexp.MustCompile(expr)
}

func codeRule(code model.Code, exprs ...string) rule {
	r := rule{code: code}
	for _, e := range exprs {
		r.patterns = append(r.patterns, re(e))
	}
	return r
}

const groomingTasks = `(groom\w*|shaving|hair|make ?up|nails?|teeth|dentures?)`

var sinkSeated = re(`(bathe|bathes)[^.]*\b(sink)\b[^.]*\b(chair|seated)\b`)

// table lists rules per item, most dependent condition first. Order is
// clinical precedence: the first matching rule decides the item.
var table = map[model.ItemKey][]rule{
	model.M1800: {
		codeRule("3",
			`(depends entirely|totally dependent)[^.]*\b`+groomingTasks+`\b`,
			`\b`+groomingTasks+`\b[^.]*\b(depends entirely|totally dependent)\b`,
		),
		codeRule("2", `(assist|help)[^.]*\b`+groomingTasks+`\b`),
		codeRule("1",
			`\b(groom|grooming)[^.]*\b(after setup|within reach)\b`,
			`\b(after setup|within reach)\b[^.]*\b(groom|grooming)\b`,
		),
		codeRule("0", `\b(groom|grooming)[^.]*\b(no physical help|independent(ly)?|without assistance)\b`),
	},
	model.M1810: {
		codeRule("3", `upper[^.]*\b(totally dependent|depends entirely)\b`),
		codeRule("2", `upper[^.]*\b(needs|need)\b[^.]*\b(help|assistance)\b[^.]*\b(put on|don)\b`),
		codeRule("1", `upper[^.]*\b(laid out|handed)\b`),
		codeRule("0",
			`(can get clothes and dress without assistance)`,
			`upper[^.]*\b(without assistance|independent(ly)?)\b[^.]*\b(get|retrieve).*(closet|drawer|clothes)`,
		),
	},
	model.M1820: {
		codeRule("3", `lower[^.]*\b(totally dependent|depends entirely)\b`),
		codeRule("2",
			`lower[^.]*\b(needs|need)\b[^.]*\b(help|assistance)\b[^.]*\b(put on|don)\b`,
			`(partial assistance|needs help)[^.]*\b(socks?|shoes?)\b`,
		),
		codeRule("1", `lower[^.]*\b(laid out|handed)\b`),
		codeRule("0", `lower[^.]*\b(without assistance|independent(ly)?)\b`),
	},
	model.M1830: {
		codeRule("6", `bathed entirely by another person`),
		{
			code:     "5",
			guard:    sinkSeated,
			patterns: []*regexp.Regexp{re(`needs (help|assistance)[^.]*\b(back|lower (leg|legs))\b`)},
		},
		{code: "4", patterns: []*regexp.Regexp{sinkSeated}},
		codeRule("3", `presence throughout`),
		codeRule("2",
			`intermittent (assistance|assist|supervision)`,
			`contact guard[^.]*\b(step in|step out|in and out)\b`,
			`(supervision|reminders)[^.]*\b(hard[- ]?to[- ]?reach|back|lower (leg|legs))\b`,
		),
		codeRule("1", `(bathes|bath) independently in (the )?shower[^.]*\b(grab bars?|non[- ]?slip mat|shower chair)\b`),
		codeRule("0", `(bathes|bath) independently in (the )?shower`),
	},
	model.M1840: {
		codeRule("4",
			`totally dependent[^.]*toilet transfers?`,
			`toilet transfers?[^.]*totally dependent`,
		),
		codeRule("3", `\b(bedpan|urinal)\b[^.]*\b(independent(ly)?)\b`),
		codeRule("2", `bedside commode`),
		codeRule("1",
			`(reminded|assisted|supervised)[^.]*toilet transfers?`,
			`toilet transfers?[^.]*\b(reminded|assisted|supervised)\b`,
		),
		codeRule("0",
			`toilet transfers? (are )?independent`,
			`independent[^.]*toilet transfers?`,
			`independent with grab bars`,
		),
	},
	model.M1850: {
		codeRule("5",
			`bedfast[^.]*unable to transfer[^.]*unable to turn`,
			`unable to turn[^.]*bedfast`,
		),
		codeRule("4", `bedfast[^.]*able to turn|bedfast[^.]*can turn`),
		codeRule("3", `unable to transfer[^.]*unable to (bear weight|pivot)`),
		codeRule("2", `bear weight[^.]*pivot[^.]*cannot (complete )?transfer`),
		codeRule("1", `minimal assistance[^.]*\b(transfer|bed to chair|chair to bed)\b`),
		codeRule("0", `\b(independent(ly)?)\b[^.]*\b(transfer|bed to chair|chair to bed)\b`),
	},
	model.M1860: {
		codeRule("6", `bedfast`),
		codeRule("5", `chair[-\s]?fast[^.]*unable to wheel self`),
		codeRule("4",
			`chair[-\s]?fast[^.]*wheel(s)? self independently`,
			`able to wheel self independently`,
		),
		codeRule("3", `walks? only with (supervision|assist) at all times`),
		codeRule("2",
			`\b(rolling )?walker\b`,
			`\bcrutches\b`,
			`(cues|supervision).*(stairs|uneven)`,
		),
		codeRule("1", `\b(cane|one-handed device)\b`),
		codeRule("0", `\bindependent(ly)?\b[^.]*\b(walk|ambulat)`),
	},
}
