package offers

import "strings"

// interestKeywords expands each interest tag a traveler can state into the
// vocabulary suppliers actually use in offer titles and descriptions. Mirrors
// the taxonomy the intent decomposer recognizes.
var interestKeywords = map[string][]string{
	"art":       {"art", "museum", "galleries", "gallery", "exhibition"},
	"food":      {"food", "cuisine", "restaurant", "dining", "culinary", "street food"},
	"history":   {"history", "historic", "heritage", "castle", "monument", "ruins"},
	"nature":    {"nature", "hike", "hiking", "park", "outdoors", "mountain", "forest"},
	"adventure": {"adventure", "kayak", "ski", "surf", "dive", "zipline", "trek", "climb"},
	"nightlife": {"nightlife", "club", "bars", "bar", "pub", "party"},
	"shopping":  {"shopping", "shop", "boutique", "mall", "market", "souvenir"},
	"family":    {"family", "kids", "children", "zoo", "theme park"},
	"romance":   {"romance", "honeymoon", "couple", "romantic"},
}

// KnownInterest reports whether the tag belongs to the recognized taxonomy.
func KnownInterest(tag string) bool {
	_, ok := interestKeywords[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

// ExpandInterests flattens interest tags into their keyword vocabulary.
// Unknown tags pass through as-is so free-form interests still match.
func ExpandInterests(tags []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tag := range tags {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		words, ok := interestKeywords[key]
		if !ok {
			out = append(out, key)
			continue
		}
		for _, w := range words {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}
