package composer

import (
	"regexp"

	"github.com/aryan0dhankhar/storefront/internal/liquid"
)

var sectionRefRe = regexp.MustCompile(`\{%-?\s*(sections?)\s+['"]([^'"]+)['"]\s*-?%\}`)

// ExtractSectionRefs lists the single sections and the section groups a
// layout references, each once, in order of appearance
func ExtractSectionRefs(layout string) (singles, groups []string) {
	seen := map[string]bool{}
	for _, m := range sectionRefRe.FindAllStringSubmatch(layout, -1) {
		key := m[1] + ":" + m[2]
		if seen[key] {
			continue
		}
		seen[key] = true
		if m[1] == "section" {
			singles = append(singles, m[2])
		} else {
			groups = append(groups, m[2])
		}
	}
	return singles, groups
}

// ExtractSectionNames lists every section a layout needs, with known
// groups expanded to their member sections. Unknown groups contribute
// nothing.
func ExtractSectionNames(layout string) []string {
	seen := map[string]bool{}
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, m := range sectionRefRe.FindAllStringSubmatch(layout, -1) {
		if m[1] == "section" {
			add(m[2])
			continue
		}
		for _, member := range liquid.SectionGroups[m[2]] {
			add(member)
		}
	}
	return names
}
