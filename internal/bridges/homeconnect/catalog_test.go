package homeconnect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProgramsRoundTrip(t *testing.T) {
	for _, kind := range SupportedTypes() {
		v, err := lookupVocabulary(kind)
		require.NoError(t, err)

		c := NewProgramCatalog(v.namespace, v.programs)
		for _, entry := range v.programs {
			key := c.Resolve(entry.Name)
			assert.Equal(t, entry.Key, key, "%s: resolve %s", kind, entry.Name)
			assert.Equal(t, entry.Name, ExtractEnum(key), "%s: round trip %s", kind, entry.Name)
			assert.Equal(t, entry.Name, c.NameForKey(key))
		}
	}
}

func TestProgramCatalogResolve(t *testing.T) {
	c := NewProgramCatalog(DryerNamespace, dryerPrograms)

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, "LaundryCare.Dryer.Program.Cotton", c.Resolve("cotton"))
		assert.Equal(t, "LaundryCare.Dryer.Program.TimeWarmFix.TimeWarm30", c.Resolve(" timewarm30 "))
	})

	t.Run("dotted value used verbatim", func(t *testing.T) {
		assert.Equal(t, "Vendor.Custom.Program.X", c.Resolve("Vendor.Custom.Program.X"))
	})

	t.Run("unknown name synthesised", func(t *testing.T) {
		assert.Equal(t, "LaundryCare.Dryer.Program.Silk", c.Resolve("Silk"))
	})

	t.Run("discovered table consulted after static", func(t *testing.T) {
		c.Replace([]ProgramEntry{
			{Name: "Wool Finish", Key: "LaundryCare.Dryer.Program.WoolFinish"},
			{Name: "Cotton", Key: "LaundryCare.Dryer.Program.Other"},
		})
		assert.Equal(t, "LaundryCare.Dryer.Program.WoolFinish", c.Resolve("wool finish"))
		assert.Equal(t, "LaundryCare.Dryer.Program.Cotton", c.Resolve("Cotton"))
		assert.Equal(t, "Wool Finish", c.NameForKey("LaundryCare.Dryer.Program.WoolFinish"))
	})

	t.Run("replace is wholesale", func(t *testing.T) {
		c.Replace([]ProgramEntry{{Key: "LaundryCare.Dryer.Program.Sport"}})
		require.Len(t, c.Discovered(), 1)
		assert.Equal(t, "Sport", c.Discovered()[0].Name)
		assert.Equal(t, "LaundryCare.Dryer.Program.Wool Finish", c.Resolve("Wool Finish"))
	})
}

func TestProgramCatalogNameForKeyFallback(t *testing.T) {
	c := NewProgramCatalog(HoodNamespace, hoodPrograms)
	assert.Equal(t, "Venting", c.NameForKey(ProgramHoodVenting))
	assert.Equal(t, "GreaseFilterClean", c.NameForKey("Cooking.Common.Program.Hood.GreaseFilterClean"))
	assert.Equal(t, "", c.NameForKey(""))
}

func TestHoodNamespaceSynthesis(t *testing.T) {
	c := NewProgramCatalog(HoodNamespace, hoodPrograms)
	assert.Equal(t, "Cooking.Common.Program.Boost", c.Resolve("Boost"))
}
