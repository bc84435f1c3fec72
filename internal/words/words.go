// Package words draws human-shareable room keys from a fixed word list.
package words

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"
)

// Separator joins the words of a generated key.
const Separator = "."

// maxSize keeps Size small enough for callers to scale it without overflow.
const maxSize = math.MaxInt32

// Fruits is the published list room keys are drawn from. Changing it changes
// the key space, so entries are only ever appended.
var Fruits = []string{
	"apple", "apricot", "avocado", "banana", "bilberry", "blackberry",
	"blackcurrant", "blueberry", "boysenberry", "breadfruit", "cantaloupe",
	"carambola", "cherimoya", "cherry", "clementine", "cloudberry", "coconut",
	"cranberry", "currant", "damson", "date", "dragonfruit", "durian",
	"elderberry", "feijoa", "fig", "gooseberry", "grape", "grapefruit",
	"guava", "honeydew", "huckleberry", "jackfruit", "jambul", "jujube",
	"kiwi", "kumquat", "lemon", "lime", "longan", "loquat", "lychee",
	"mandarin", "mango", "mangosteen", "marionberry", "medlar", "melon",
	"mulberry", "nance", "nectarine", "olive", "orange", "papaya",
	"passionfruit", "pawpaw", "peach", "pear", "persimmon", "physalis",
	"pineapple", "pitaya", "plantain", "plum", "pomegranate", "pomelo",
	"quince", "raisin", "rambutan", "raspberry", "redcurrant", "salak",
	"satsuma", "soursop", "strawberry", "tamarillo", "tamarind", "tangelo",
	"tangerine", "ugli", "watermelon", "yuzu",
}

// Generator draws random keys from a word list. It is safe for concurrent use.
type Generator struct {
	list []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator returns a Generator over list. A nil rnd uses the global
// source; tests pass a seeded one for reproducible keys.
func NewGenerator(list []string, rnd *rand.Rand) *Generator {
	if len(list) == 0 {
		panic("words: empty word list")
	}
	return &Generator{list: list, rnd: rnd}
}

// Default returns a Generator over Fruits using the global random source.
func Default() *Generator {
	return NewGenerator(Fruits, nil)
}

// Name joins parts independently drawn words, e.g. "pear.plum" for parts == 2.
func (g *Generator) Name(parts int) string {
	if parts < 1 {
		parts = 1
	}
	picked := make([]string, parts)
	for i := range picked {
		picked[i] = g.list[g.intN(len(g.list))]
	}
	return strings.Join(picked, Separator)
}

// Size is the number of distinct keys Name(parts) can produce, saturating
// at maxSize.
func (g *Generator) Size(parts int) int {
	if parts < 1 {
		parts = 1
	}
	n := 1
	for i := 0; i < parts; i++ {
		if n > maxSize/len(g.list) {
			return maxSize
		}
		n *= len(g.list)
	}
	return n
}

func (g *Generator) intN(n int) int {
	if g.rnd == nil {
		return rand.IntN(n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.IntN(n)
}

// Pairs calls fn with every two-word key over list, stopping early when fn
// returns false.
func Pairs(list []string, fn func(key string) bool) {
	for _, first := range list {
		for _, second := range list {
			if !fn(first + Separator + second) {
				return
			}
		}
	}
}
