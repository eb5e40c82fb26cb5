package config

import "strings"

// Strategy names for list-page pagination
const (
	StrategyOffset = "offset"
	StrategyReveal = "reveal"
)

// Query describes one configured marketplace search
type Query struct {
	Name     string
	Keywords string
	Where    string
	Strategy string
}

// DefaultQueries returns the configured search table. The caller passes the
// table into the extractor explicitly; there is no hidden global registry.
func DefaultQueries() []Query {
	return []Query{
		{Name: "anglais-paris", Keywords: "anglais", Where: "Paris", Strategy: StrategyOffset},
		{Name: "anglais-lyon", Keywords: "anglais", Where: "Lyon", Strategy: StrategyOffset},
		{Name: "bilan-competences", Keywords: "bilan de compétences", Where: "", Strategy: StrategyOffset},
		{Name: "permis-b", Keywords: "permis B", Where: "", Strategy: StrategyReveal},
		{Name: "vae", Keywords: "VAE", Where: "", Strategy: StrategyReveal},
		{Name: "creation-entreprise", Keywords: "création d'entreprise", Where: "", Strategy: StrategyOffset},
	}
}

// ResolveQueries selects queries by exact name or by the name prefix before
// the first hyphen. It returns the matched queries in table order and the
// requested names that matched nothing.
func ResolveQueries(table []Query, requested []string) ([]Query, []string) {
	if len(requested) == 0 {
		return table, nil
	}

	wanted := make(map[string]bool)
	for _, name := range requested {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				wanted[part] = false
			}
		}
	}

	var matched []Query
	for _, q := range table {
		prefix, _, _ := strings.Cut(q.Name, "-")
		for name := range wanted {
			if q.Name == name || prefix == name {
				matched = append(matched, q)
				wanted[name] = true
				break
			}
		}
	}

	var unknown []string
	for name, hit := range wanted {
		if !hit {
			unknown = append(unknown, name)
		}
	}
	return matched, unknown
}
