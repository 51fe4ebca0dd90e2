package cluster

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"trendpulse/internal/domain/trend"
)

// Config contains configuration for phrase clustering.
type Config struct {
	SimilarityThreshold float64
	AmbiguityBand       float64
	IndexCacheSize      int
}

// AssignResult is the outcome of assigning one raw label.
type AssignResult struct {
	EventKey    string
	LabelSource trend.LabelSource
	Created     bool
	Merged      bool
}

// Info is a read snapshot of one cluster.
type Info struct {
	EventKey       string
	CanonicalLabel string
	LabelSource    trend.LabelSource
	AliasVariants  []string
	Members        []string
	FirstSeenAt    time.Time
}

// labelInfo tracks one normalized label's history for canonical
// election.
type labelInfo struct {
	display   string
	frequency int
	firstSeen time.Time
}

// state is the mutable cluster record held at each union-find root.
type state struct {
	eventKey    string
	labelSource trend.LabelSource
	members     map[string]*labelInfo
	firstSeen   time.Time
}

// Clusterer merges near-duplicate topic labels into canonical clusters
// using union-find over incoming labels with a token index for
// candidate lookup, so a pass never rescans every known label. A label
// belongs to at most one cluster at a time.
type Clusterer struct {
	mu     sync.Mutex
	config Config
	logger *slog.Logger
	clock  func() time.Time

	parent     map[string]string
	roots      map[string]*state
	byEventKey map[string]string
	tokenIndex map[string]map[string]struct{}
	recent     *lru.Cache[string, string]
}

// NewClusterer creates a new phrase clusterer.
func NewClusterer(config Config, logger *slog.Logger) (*Clusterer, error) {
	if config.IndexCacheSize <= 0 {
		config.IndexCacheSize = 4096
	}
	recent, err := lru.New[string, string](config.IndexCacheSize)
	if err != nil {
		return nil, err
	}

	return &Clusterer{
		config:     config,
		logger:     logger,
		clock:      time.Now,
		parent:     make(map[string]string),
		roots:      make(map[string]*state),
		byEventKey: make(map[string]string),
		tokenIndex: make(map[string]map[string]struct{}),
		recent:     recent,
	}, nil
}

// SetClock overrides the clusterer's clock. Used by tests.
func (c *Clusterer) SetClock(clock func() time.Time) {
	c.clock = clock
}

// Assign matches a raw label against existing canonical labels and
// alias variants. A match at or above the similarity threshold folds
// the label into the existing cluster as an alias; a similarity inside
// the ambiguity band below the threshold deliberately does not merge,
// since over-merging is harder to undo than under-merging. Otherwise a
// new cluster is created with this label as canonical.
func (c *Clusterer) Assign(rawLabel, entityType string) AssignResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	label, source := c.effectiveLabel(rawLabel, entityType)
	key := NormalKey(label)
	now := c.clock()

	// Fast path: a label seen before stays with its cluster.
	if eventKey, ok := c.recent.Get(key); ok {
		if root, ok := c.byEventKey[eventKey]; ok {
			c.touch(root, key, label, now)
			return AssignResult{EventKey: eventKey, LabelSource: c.roots[root].labelSource}
		}
	}
	if root, ok := c.findIfKnown(key); ok {
		st := c.roots[root]
		c.touch(root, key, label, now)
		c.recent.Add(key, st.eventKey)
		return AssignResult{EventKey: st.eventKey, LabelSource: st.labelSource}
	}

	tokens := Tokens(label)

	bestRoot, bestSim := c.bestCandidate(key, tokens)
	if bestRoot != "" && bestSim >= c.config.SimilarityThreshold {
		st := c.merge(bestRoot, key, label, source, now, tokens)
		c.recent.Add(key, st.eventKey)
		return AssignResult{EventKey: st.eventKey, LabelSource: st.labelSource, Merged: true}
	}

	if bestRoot != "" && bestSim >= c.config.SimilarityThreshold-c.config.AmbiguityBand {
		// Near-threshold similarity is logged for audit and resolved
		// toward no merge.
		c.logger.Debug("ambiguous cluster match, not merging",
			"label", label,
			"candidate", c.roots[bestRoot].members[bestRoot].display,
			"similarity", bestSim,
			"threshold", c.config.SimilarityThreshold)
	}

	st := c.create(key, label, source, now, tokens)
	c.recent.Add(key, st.eventKey)
	return AssignResult{EventKey: st.eventKey, LabelSource: st.labelSource, Created: true}
}

// Known reports whether a label already belongs to a cluster.
func (c *Clusterer) Known(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.parent[NormalKey(label)]
	return ok
}

// Clusters returns a deterministic snapshot of every cluster.
func (c *Clusterer) Clusters() []Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]Info, 0, len(c.roots))
	for _, st := range c.roots {
		canonical := c.electCanonical(st)

		var aliases, members []string
		for key, li := range st.members {
			members = append(members, li.display)
			if key != NormalKey(canonical) {
				aliases = append(aliases, li.display)
			}
		}
		sort.Strings(aliases)
		sort.Strings(members)

		infos = append(infos, Info{
			EventKey:       st.eventKey,
			CanonicalLabel: canonical,
			LabelSource:    st.labelSource,
			AliasVariants:  aliases,
			Members:        members,
			FirstSeenAt:    st.firstSeen,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].EventKey < infos[j].EventKey })
	return infos
}

// effectiveLabel resolves the label and its provenance: event phrase
// when present, entity type when the phrase is missing, generated
// fallback when both are.
func (c *Clusterer) effectiveLabel(rawLabel, entityType string) (string, trend.LabelSource) {
	if rawLabel != "" {
		return rawLabel, trend.LabelFromPhrase
	}
	if entityType != "" {
		return entityType, trend.LabelEntityOnly
	}
	return "topic-" + uuid.New().String()[:8], trend.LabelFallback
}

func (c *Clusterer) findIfKnown(key string) (string, bool) {
	if _, ok := c.parent[key]; !ok {
		return "", false
	}
	return c.find(key), true
}

// find is union-find root lookup with path compression.
func (c *Clusterer) find(key string) string {
	root := key
	for c.parent[root] != root {
		root = c.parent[root]
	}
	for c.parent[key] != root {
		key, c.parent[key] = c.parent[key], root
	}
	return root
}

// bestCandidate looks up clusters sharing at least one token and
// returns the most similar one. The token index keeps this proportional
// to the candidate set, not the total label count.
func (c *Clusterer) bestCandidate(key string, tokens []string) (string, float64) {
	candidates := make(map[string]struct{})
	for _, t := range tokens {
		for root := range c.tokenIndex[t] {
			candidates[c.find(root)] = struct{}{}
		}
	}

	var bestRoot string
	var bestSim float64
	for root := range candidates {
		st := c.roots[root]
		if st == nil {
			continue
		}
		for _, li := range st.members {
			sim := Jaccard(tokens, Tokens(li.display))
			if sim > bestSim || (sim == bestSim && root < bestRoot) {
				bestRoot, bestSim = root, sim
			}
		}
	}

	return bestRoot, bestSim
}

func (c *Clusterer) create(key, label string, source trend.LabelSource, now time.Time, tokens []string) *state {
	c.parent[key] = key
	st := &state{
		eventKey:    uuid.New().String(),
		labelSource: source,
		members: map[string]*labelInfo{
			key: {display: label, frequency: 1, firstSeen: now},
		},
		firstSeen: now,
	}
	c.roots[key] = st
	c.byEventKey[st.eventKey] = key
	c.indexTokens(key, tokens)
	return st
}

func (c *Clusterer) merge(root, key, label string, source trend.LabelSource, now time.Time, tokens []string) *state {
	root = c.find(root)
	st := c.roots[root]

	c.parent[key] = root
	st.members[key] = &labelInfo{display: label, frequency: 1, firstSeen: now}
	if source == trend.LabelFromPhrase && st.labelSource != trend.LabelFromPhrase {
		st.labelSource = trend.LabelFromPhrase
	}
	c.indexTokens(root, tokens)
	return st
}

func (c *Clusterer) touch(root, key, label string, now time.Time) {
	st := c.roots[root]
	li, ok := st.members[key]
	if !ok {
		li = &labelInfo{display: label, firstSeen: now}
		st.members[key] = li
		c.parent[key] = root
	}
	li.frequency++
}

// electCanonical prefers the member label with the highest historical
// frequency; ties break toward the earliest first-seen label.
func (c *Clusterer) electCanonical(st *state) string {
	var best *labelInfo
	for _, li := range st.members {
		switch {
		case best == nil:
			best = li
		case li.frequency > best.frequency:
			best = li
		case li.frequency == best.frequency && li.firstSeen.Before(best.firstSeen):
			best = li
		case li.frequency == best.frequency && li.firstSeen.Equal(best.firstSeen) && li.display < best.display:
			best = li
		}
	}
	if best == nil {
		return ""
	}
	return best.display
}

func (c *Clusterer) indexTokens(root string, tokens []string) {
	for _, t := range tokens {
		set, ok := c.tokenIndex[t]
		if !ok {
			set = make(map[string]struct{})
			c.tokenIndex[t] = set
		}
		set[root] = struct{}{}
	}
}
