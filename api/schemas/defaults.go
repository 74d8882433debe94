package schemas

import "github.com/google/uuid"

// DefaultCategories returns the four stock consent buckets. A fresh install
// starts from these; administrators can edit or remove everything except the
// invariant that required categories always evaluate as allowed.
func DefaultCategories() []Category {
	return []Category{
		{
			ID:             "essential",
			Name:           "Essential Cookies",
			Description:    "Required for the website to function properly",
			Required:       true,
			DefaultEnabled: true,
			Order:          1,
		},
		{
			ID:          "analytics",
			Name:        "Analytics Cookies",
			Description: "Help us understand how visitors interact with our website",
			Order:       2,
		},
		{
			ID:          "marketing",
			Name:        "Marketing Cookies",
			Description: "Used to track visitors for marketing purposes",
			Order:       3,
		},
		{
			ID:          "functional",
			Name:        "Functional Cookies",
			Description: "Enable enhanced functionality and personalization",
			Order:       4,
		},
	}
}

// DefaultMappings returns the stock pattern-to-category rules covering the
// platform's own cookies plus the common analytics and marketing trackers.
func DefaultMappings() []MappingRule {
	seed := []struct {
		pattern  string
		category string
		priority int
	}{
		{"wordpress_*", "essential", 100},
		{"wordpressuser_*", "essential", 100},
		{"wordpresspass_*", "essential", 100},
		{"wordpress_logged_in_*", "essential", 100},
		{"wp-settings-*", "essential", 90},
		{"comment_author_*", "essential", 80},
		{"_ga", "analytics", 50},
		{"_ga_*", "analytics", 50},
		{"_gid", "analytics", 50},
		{"_gat", "analytics", 50},
		{"_gat_*", "analytics", 50},
		{"_fbp", "marketing", 50},
		{"_fbc", "marketing", 50},
		{"sbjs_*", "analytics", 40},
	}

	rules := make([]MappingRule, 0, len(seed))
	for i, s := range seed {
		rules = append(rules, MappingRule{
			ID:       uuid.NewString(),
			Pattern:  s.pattern,
			Category: s.category,
			Priority: s.priority,
			Position: i,
		})
	}
	return rules
}
