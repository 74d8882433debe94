package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

func rule(id, pattern, domain, path, category string, priority, position int) schemas.MappingRule {
	return schemas.MappingRule{
		ID:       id,
		Pattern:  pattern,
		Domain:   domain,
		Path:     path,
		Category: category,
		Priority: priority,
		Position: position,
	}
}

func TestTableResolve(t *testing.T) {
	t.Parallel()

	t.Run("single matching rule wins", func(t *testing.T) {
		t.Parallel()
		table := NewTable([]schemas.MappingRule{
			rule("r1", "_ga*", "", "", "analytics", 50, 0),
			rule("r2", "_fbp", "", "", "marketing", 50, 1),
		}, zap.NewNop())

		cat, ok := table.Resolve(schemas.Identity{Name: "_ga_123"})
		require.True(t, ok)
		assert.Equal(t, "analytics", cat)
	})

	t.Run("no rule matches", func(t *testing.T) {
		t.Parallel()
		table := NewTable([]schemas.MappingRule{
			rule("r1", "_ga*", "", "", "analytics", 50, 0),
		}, zap.NewNop())

		_, ok := table.Resolve(schemas.Identity{Name: "custom_x"})
		assert.False(t, ok)
	})

	t.Run("highest priority wins regardless of list order", func(t *testing.T) {
		t.Parallel()
		table := NewTable([]schemas.MappingRule{
			rule("low", "_ga*", "", "", "analytics", 10, 0),
			rule("high", "_ga*", "", "", "essential", 90, 1),
		}, zap.NewNop())

		cat, ok := table.Resolve(schemas.Identity{Name: "_ga"})
		require.True(t, ok)
		assert.Equal(t, "essential", cat)
	})

	t.Run("equal priorities break ties by insertion position", func(t *testing.T) {
		t.Parallel()
		// Positions deliberately out of slice order.
		table := NewTable([]schemas.MappingRule{
			rule("second", "_ga*", "", "", "marketing", 50, 5),
			rule("first", "_ga*", "", "", "analytics", 50, 2),
		}, zap.NewNop())

		cat, ok := table.Resolve(schemas.Identity{Name: "_ga_1"})
		require.True(t, ok)
		assert.Equal(t, "analytics", cat, "earlier-inserted rule must win the tie")
	})

	t.Run("all three dimensions must match", func(t *testing.T) {
		t.Parallel()
		table := NewTable([]schemas.MappingRule{
			rule("r1", "session", "*.example.com", "/shop*", "functional", 10, 0),
		}, zap.NewNop())

		_, ok := table.Resolve(schemas.Identity{Name: "session", Domain: "shop.example.com", Path: "/cart"})
		assert.False(t, ok, "path does not match")

		cat, ok := table.Resolve(schemas.Identity{Name: "session", Domain: "shop.example.com", Path: "/shop/cart"})
		require.True(t, ok)
		assert.Equal(t, "functional", cat)
	})

	t.Run("empty domain and path are unconstrained", func(t *testing.T) {
		t.Parallel()
		table := NewTable([]schemas.MappingRule{
			rule("r1", "_gid", "", "", "analytics", 10, 0),
		}, zap.NewNop())

		cat, ok := table.Resolve(schemas.Identity{Name: "_gid", Domain: ".example.com", Path: "/deep/path"})
		require.True(t, ok)
		assert.Equal(t, "analytics", cat)
	})

	t.Run("malformed rule without a pattern is skipped", func(t *testing.T) {
		t.Parallel()
		table := NewTable([]schemas.MappingRule{
			rule("broken", "", "", "", "essential", 100, 0),
			rule("ok", "_fbp", "", "", "marketing", 10, 1),
		}, zap.NewNop())

		cat, ok := table.Resolve(schemas.Identity{Name: "_fbp"})
		require.True(t, ok)
		assert.Equal(t, "marketing", cat)

		_, ok = table.Resolve(schemas.Identity{Name: "anything"})
		assert.False(t, ok, "the malformed rule must not act as match-all")
	})

	t.Run("default mappings classify the usual suspects", func(t *testing.T) {
		t.Parallel()
		table := NewTable(schemas.DefaultMappings(), zap.NewNop())

		expectations := map[string]string{
			"wordpress_logged_in_abc123": "essential",
			"wp-settings-1":              "essential",
			"_ga":                        "analytics",
			"_ga_G12345":                 "analytics",
			"_fbp":                       "marketing",
			"sbjs_first":                 "analytics",
		}
		for name, want := range expectations {
			cat, ok := table.Resolve(schemas.Identity{Name: name})
			require.True(t, ok, "expected %q to be mapped", name)
			assert.Equal(t, want, cat, "cookie %q", name)
		}
	})
}
