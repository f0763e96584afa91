package content

import (
	"context"
	"fmt"
	"sync"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
)

// Static hands out articles from a fixed catalogue, cycling through it.
// Every returned article gets a fresh id so repeated titles stay distinct.
type Static struct {
	mu      sync.Mutex
	catalog []engine.Article
	next    int
	issued  int
}

func NewStatic(catalog ...engine.Article) *Static {
	if len(catalog) == 0 {
		catalog = defaultCatalog
	}
	return &Static{catalog: catalog}
}

func (s *Static) Articles(ctx context.Context, n int) ([]engine.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]engine.Article, n)
	for i := range out {
		a := s.catalog[s.next]
		s.next = (s.next + 1) % len(s.catalog)
		s.issued++
		a.ID = fmt.Sprintf("static-%d", s.issued)
		out[i] = a
	}
	return out, nil
}

var defaultCatalog = []engine.Article{
	{Title: "Platypus", URL: "https://en.wikipedia.org/wiki/Platypus", Extract: "The platypus is a semiaquatic, egg-laying mammal endemic to eastern Australia."},
	{Title: "Tardigrade", URL: "https://en.wikipedia.org/wiki/Tardigrade", Extract: "Tardigrades are a phylum of eight-legged segmented micro-animals."},
	{Title: "Voynich manuscript", URL: "https://en.wikipedia.org/wiki/Voynich_manuscript", Extract: "The Voynich manuscript is an illustrated codex hand-written in an unknown script."},
	{Title: "Great Emu War", URL: "https://en.wikipedia.org/wiki/Emu_War", Extract: "The Emu War was a nuisance wildlife management operation in Western Australia in 1932."},
	{Title: "Dancing plague of 1518", URL: "https://en.wikipedia.org/wiki/Dancing_plague_of_1518", Extract: "The dancing plague of 1518 was a case of dancing mania in Strasbourg."},
	{Title: "Lake Nyos", URL: "https://en.wikipedia.org/wiki/Lake_Nyos", Extract: "Lake Nyos is a crater lake in Cameroon known for a 1986 limnic eruption."},
	{Title: "Baghdad Battery", URL: "https://en.wikipedia.org/wiki/Baghdad_Battery", Extract: "The Baghdad Battery is a set of three artifacts found together in Iraq."},
	{Title: "Mantis shrimp", URL: "https://en.wikipedia.org/wiki/Mantis_shrimp", Extract: "Mantis shrimp are carnivorous marine crustaceans of the order Stomatopoda."},
	{Title: "Antikythera mechanism", URL: "https://en.wikipedia.org/wiki/Antikythera_mechanism", Extract: "The Antikythera mechanism is an Ancient Greek hand-powered orrery."},
}
