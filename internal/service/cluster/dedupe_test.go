package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const wireArticle = `A major power outage struck the downtown core early Monday
morning, leaving tens of thousands of residents without electricity. Utility
crews were dispatched to the central substation where officials said a
transformer failure triggered cascading shutdowns across the grid. Restoration
is expected to take several hours as engineers isolate the damaged equipment.`

// syndicated copy: same wire body reflowed with house style applied, so
// it differs only in casing, punctuation, and whitespace.
const syndicatedArticle = `A MAJOR POWER OUTAGE struck the downtown core early
Monday morning -- leaving tens of thousands of residents without electricity!
Utility crews were dispatched to the central substation, where officials said
a transformer failure triggered cascading shutdowns across the grid;
restoration is expected to take several hours as engineers isolate the
damaged equipment.`

const unrelatedArticle = `The city council approved the new harbor bridge
maintenance budget on Tuesday after months of debate. Supporters argued the
aging span needs structural reinforcement before winter, while opponents
pushed for the funds to go toward transit expansion instead.`

func TestCheckFlagsNearDuplicate(t *testing.T) {
	d := NewDeduper(4)

	first := d.Check("article-1", wireArticle)
	assert.False(t, first.IsDuplicate)

	second := d.Check("article-2", syndicatedArticle)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, "article-1", second.OriginalRef)
}

func TestCheckDistinctBodiesNotFlagged(t *testing.T) {
	d := NewDeduper(4)

	d.Check("article-1", wireArticle)
	res := d.Check("article-2", unrelatedArticle)

	assert.False(t, res.IsDuplicate)
	assert.Empty(t, res.OriginalRef)
}

func TestCheckRepeatRefIsNoOp(t *testing.T) {
	d := NewDeduper(4)

	d.Check("article-1", wireArticle)
	res := d.Check("article-1", wireArticle)

	assert.False(t, res.IsDuplicate)
}

func TestCheckDuplicatesPointAtEarliestOriginal(t *testing.T) {
	d := NewDeduper(4)

	d.Check("article-1", wireArticle)
	d.Check("article-2", wireArticle)

	// The second copy is flagged and not indexed, so a third copy still
	// resolves to the first registration.
	third := d.Check("article-3", wireArticle)
	assert.True(t, third.IsDuplicate)
	assert.Equal(t, "article-1", third.OriginalRef)
}

func TestCheckEmptyBody(t *testing.T) {
	d := NewDeduper(4)

	res := d.Check("article-1", "")
	assert.False(t, res.IsDuplicate)
}
