package evidence

import (
	"strings"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// nameAliases maps lowercased aliases to canonical speaker names. Full names,
// roster aliases, and unambiguous first names are all aliases.
func nameAliases(transcript []models.ReconciledUtterance, roster []models.RosterEntry) map[string]string {
	aliases := make(map[string]string)
	firstNames := make(map[string][]string)

	add := func(name string, extra ...string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		lower := strings.ToLower(name)
		if _, ok := aliases[lower]; ok {
			return
		}
		aliases[lower] = name
		for _, a := range extra {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				aliases[a] = name
			}
		}
		if parts := strings.Fields(lower); len(parts) > 1 {
			firstNames[parts[0]] = append(firstNames[parts[0]], name)
		}
	}
	for _, r := range roster {
		add(r.Name, r.Aliases...)
	}
	for _, u := range transcript {
		add(u.Name())
	}
	for first, owners := range firstNames {
		if _, taken := aliases[first]; !taken && len(owners) == 1 && len([]rune(first)) >= 3 {
			aliases[first] = owners[0]
		}
	}
	return aliases
}

// mentionedNames returns the canonical names referenced by text, keyed by their
// lowercase form. Single-word aliases tolerate one typo.
func mentionedNames(text string, aliases map[string]string) map[string]string {
	lowered := strings.ToLower(text)
	words := splitWords(text)
	out := make(map[string]string)
	for alias, canonical := range aliases {
		if strings.Contains(alias, " ") {
			if strings.Contains(lowered, alias) {
				out[strings.ToLower(canonical)] = canonical
			}
			continue
		}
		for _, w := range words {
			if fuzzyEqual(w, alias) {
				out[strings.ToLower(canonical)] = canonical
				break
			}
		}
	}
	return out
}
