package coordinator

import (
	"regexp"

	"mococo/pkg/roster"
)

// mentionRE matches both platform ID mentions (<@123>, <@!123>) and plain
// @name mentions.
var mentionRE = regexp.MustCompile(`<@!?(\d+)>|@([A-Za-z0-9_.-]+)`)

// ExtractMentions resolves every mention in text against the roster,
// preserving first-mention order and dropping duplicates and unknown names.
// ID mentions resolve through the external ID mapping, plain mentions by
// case-insensitive name.
func ExtractMentions(text string, ros *roster.Roster) []*roster.Worker {
	matches := mentionRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []*roster.Worker
	for _, m := range matches {
		var (
			w  *roster.Worker
			ok bool
		)
		if m[1] != "" {
			w, ok = ros.ByExternalID(m[1])
		} else {
			w, ok = ros.Get(m[2])
		}
		if !ok || seen[w.Name] {
			continue
		}
		seen[w.Name] = true
		out = append(out, w)
	}
	return out
}
