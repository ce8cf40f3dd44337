package storage

// Genre is one of the fixed movie categories.
type Genre uint8

const (
	Action Genre = iota
	Adult
	Adventure
	Animation
	Comedy
	Crime
	Documentary
	Drama
	Family
	Fantasy
	FilmNoir
	Horror
	Music
	Musical
	Mystery
	Romance
	SciFi
	Short
	Thriller
	War
	Western

	numGenres
)

// genreLabels holds the input label of every genre, indexed by Genre.
var genreLabels = [numGenres]string{
	Action:      "Action",
	Adult:       "Adult",
	Adventure:   "Adventure",
	Animation:   "Animation",
	Comedy:      "Comedy",
	Crime:       "Crime",
	Documentary: "Documentary",
	Drama:       "Drama",
	Family:      "Family",
	Fantasy:     "Fantasy",
	FilmNoir:    "Film-Noir",
	Horror:      "Horror",
	Music:       "Music",
	Musical:     "Musical",
	Mystery:     "Mystery",
	Romance:     "Romance",
	SciFi:       "Sci-Fi",
	Short:       "Short",
	Thriller:    "Thriller",
	War:         "War",
	Western:     "Western",
}

// genresByLabel is the read-only label → Genre table, built once at init.
var genresByLabel = func() map[string]Genre {
	m := make(map[string]Genre, numGenres)
	for g, label := range genreLabels {
		m[label] = Genre(g)
	}
	return m
}()

// ParseGenre maps an input label such as "Sci-Fi" to its Genre.
func ParseGenre(label string) (Genre, bool) {
	g, ok := genresByLabel[label]
	return g, ok
}

// String returns the input label of g.
func (g Genre) String() string {
	if g < numGenres {
		return genreLabels[g]
	}
	return "Genre(?)"
}

// AllGenres returns every genre in declaration order.
func AllGenres() []Genre {
	out := make([]Genre, numGenres)
	for i := range out {
		out[i] = Genre(i)
	}
	return out
}
