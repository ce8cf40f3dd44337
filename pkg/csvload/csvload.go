// Package csvload reads the bulk movie dataset into a store.
//
// A dataset is a directory of six semicolon-separated files, read in a fixed
// order so every edge file finds the entities it references already loaded:
//
//	movies.csv            id;name;year;rank
//	actors.csv            id;first_name;last_name;gender
//	directors.csv         id;first_name;last_name
//	movies_directors.csv  director_id;movie_id
//	movies_genres.csv     movie_id;genre
//	roles.csv             actor_id;movie_id;role
//
// Every file starts with a header line, which is skipped. Strings must be
// double quoted with embedded quotes doubled (""), numbers are plain unquoted
// decimals (-?[0-9]+(\.[0-9]*)?, no exponent) and columns past the expected
// ones are ignored. The gender token may be written either way.
//
// Example Usage:
//
//	store := storage.New(storage.Options{})
//	res, err := csvload.LoadDir(ctx, store, "./data/imdb", logger)
//	if err != nil {
//		var perr *csvload.ParseError
//		if errors.As(err, &perr) {
//			log.Fatalf("%s line %d: %v", perr.File, perr.Line, perr.Err)
//		}
//		log.Fatal(err)
//	}
//	fmt.Println(res.Rows(csvload.MoviesFile), "movies")
//
// Malformed input never reaches the store's invariant checks: edge rows that
// name a movie, actor or director that was not loaded are rejected with
// ErrDanglingReference before any insert happens.
package csvload

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/orneryd/cinegraph/pkg/storage"
)

// Dataset file names, in load order.
const (
	MoviesFile          = "movies.csv"
	ActorsFile          = "actors.csv"
	DirectorsFile       = "directors.csv"
	MovieDirectorsFile  = "movies_directors.csv"
	MovieGenresFile     = "movies_genres.csv"
	RolesFile           = "roles.csv"
	fieldSeparator      = ';'
	cancelCheckInterval = 4096
)

// Errors wrapped by ParseError.
var (
	ErrMalformed         = errors.New("malformed record")
	ErrUnknownGenre      = errors.New("unknown genre")
	ErrUnknownGender     = errors.New("unknown gender")
	ErrDanglingReference = errors.New("dangling reference")
)

// ParseError locates a bad record.
type ParseError struct {
	File   string
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: %s: %v", e.File, e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FileStat describes one loaded file.
type FileStat struct {
	File     string        `json:"file" yaml:"file"`
	Rows     int           `json:"rows" yaml:"rows"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
}

// Result summarizes a LoadDir call. Files are in load order.
type Result struct {
	Files []FileStat `json:"files" yaml:"files"`
}

// Rows returns the row count recorded for file, or 0.
func (r *Result) Rows(file string) int {
	for _, f := range r.Files {
		if f.File == file {
			return f.Rows
		}
	}
	return 0
}

// TotalDuration sums the per-file durations.
func (r *Result) TotalDuration() time.Duration {
	var d time.Duration
	for _, f := range r.Files {
		d += f.Duration
	}
	return d
}

// Reader loads one source file from r into store, returning the number of
// data rows applied.
type Reader func(ctx context.Context, store *storage.Store, r io.Reader) (int, error)

var sources = []struct {
	file string
	read Reader
}{
	{MoviesFile, ReadMovies},
	{ActorsFile, ReadActors},
	{DirectorsFile, ReadDirectors},
	{MovieDirectorsFile, ReadMovieDirectors},
	{MovieGenresFile, ReadMovieGenres},
	{RolesFile, ReadRoles},
}

// LoadDir loads all six dataset files from dir into store.
//
// On error the store holds whatever was applied before the failing row.
func LoadDir(ctx context.Context, store *storage.Store, dir string, log zerolog.Logger) (*Result, error) {
	log = log.With().Str("component", "csvload").Logger()
	res := &Result{Files: make([]FileStat, 0, len(sources))}

	for _, src := range sources {
		start := time.Now()
		n, err := loadFile(ctx, store, filepath.Join(dir, src.file), src.read)
		if err != nil {
			return res, err
		}
		stat := FileStat{File: src.file, Rows: n, Duration: time.Since(start)}
		res.Files = append(res.Files, stat)
		log.Debug().Str("file", stat.File).Int("rows", stat.Rows).Dur("took", stat.Duration).Msg("loaded")
	}

	log.Info().
		Int("movies", store.NumMovies()).
		Int("actors", store.NumActors()).
		Int("directors", store.NumDirectors()).
		Int("roles", store.NumRoles()).
		Dur("took", res.TotalDuration()).
		Msg("dataset loaded")
	return res, nil
}

func loadFile(ctx context.Context, store *storage.Store, path string, read Reader) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening dataset file: %w", err)
	}
	defer f.Close()
	return read(ctx, store, f)
}

// =============================================================================
// Per-file readers
// =============================================================================

// ReadMovies loads movies.csv rows.
func ReadMovies(ctx context.Context, store *storage.Store, r io.Reader) (int, error) {
	return eachRecord(ctx, MoviesFile, r, 4, func(rec *record) error {
		id := rec.intField(0, "id")
		title := rec.str(1, "name")
		year := rec.intField(2, "year")
		rank := rec.floatField(3, "rank")
		if rec.err != nil {
			return rec.err
		}
		store.InsertMovie(storage.MovieID(id), title, year, rank)
		return nil
	})
}

// ReadActors loads actors.csv rows.
func ReadActors(ctx context.Context, store *storage.Store, r io.Reader) (int, error) {
	return eachRecord(ctx, ActorsFile, r, 4, func(rec *record) error {
		id := rec.intField(0, "id")
		first := rec.str(1, "first_name")
		last := rec.str(2, "last_name")
		if rec.err != nil {
			return rec.err
		}
		gender, ok := storage.ParseGender(rec.fields[3])
		if !ok {
			return rec.fail("gender", fmt.Errorf("%w %q", ErrUnknownGender, rec.fields[3]))
		}
		store.InsertActor(storage.ActorID(id), first, last, gender)
		return nil
	})
}

// ReadDirectors loads directors.csv rows.
func ReadDirectors(ctx context.Context, store *storage.Store, r io.Reader) (int, error) {
	return eachRecord(ctx, DirectorsFile, r, 3, func(rec *record) error {
		id := rec.intField(0, "id")
		first := rec.str(1, "first_name")
		last := rec.str(2, "last_name")
		if rec.err != nil {
			return rec.err
		}
		store.InsertDirector(storage.DirectorID(id), first, last)
		return nil
	})
}

// ReadMovieDirectors loads movies_directors.csv rows.
func ReadMovieDirectors(ctx context.Context, store *storage.Store, r io.Reader) (int, error) {
	return eachRecord(ctx, MovieDirectorsFile, r, 2, func(rec *record) error {
		directorID := storage.DirectorID(rec.intField(0, "director_id"))
		movieID := storage.MovieID(rec.intField(1, "movie_id"))
		if rec.err != nil {
			return rec.err
		}
		if !store.HasDirector(directorID) {
			return rec.fail("director_id", fmt.Errorf("%w: director %d", ErrDanglingReference, directorID))
		}
		if !store.HasMovie(movieID) {
			return rec.fail("movie_id", fmt.Errorf("%w: movie %d", ErrDanglingReference, movieID))
		}
		store.LinkDirectorMovie(directorID, movieID)
		return nil
	})
}

// ReadMovieGenres loads movies_genres.csv rows.
func ReadMovieGenres(ctx context.Context, store *storage.Store, r io.Reader) (int, error) {
	return eachRecord(ctx, MovieGenresFile, r, 2, func(rec *record) error {
		movieID := storage.MovieID(rec.intField(0, "movie_id"))
		label := rec.str(1, "genre")
		if rec.err != nil {
			return rec.err
		}
		genre, ok := storage.ParseGenre(label)
		if !ok {
			return rec.fail("genre", fmt.Errorf("%w %q", ErrUnknownGenre, label))
		}
		if !store.HasMovie(movieID) {
			return rec.fail("movie_id", fmt.Errorf("%w: movie %d", ErrDanglingReference, movieID))
		}
		store.AttachGenre(movieID, genre)
		return nil
	})
}

// ReadRoles loads roles.csv rows.
func ReadRoles(ctx context.Context, store *storage.Store, r io.Reader) (int, error) {
	return eachRecord(ctx, RolesFile, r, 3, func(rec *record) error {
		actorID := storage.ActorID(rec.intField(0, "actor_id"))
		movieID := storage.MovieID(rec.intField(1, "movie_id"))
		name := rec.str(2, "role")
		if rec.err != nil {
			return rec.err
		}
		if !store.HasActor(actorID) {
			return rec.fail("actor_id", fmt.Errorf("%w: actor %d", ErrDanglingReference, actorID))
		}
		if !store.HasMovie(movieID) {
			return rec.fail("movie_id", fmt.Errorf("%w: movie %d", ErrDanglingReference, movieID))
		}
		store.AddRole(movieID, actorID, name)
		return nil
	})
}

// =============================================================================
// Record scanning
// =============================================================================

var numberPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]*)?$`)

// record is one data row plus the first field error seen while decoding it.
type record struct {
	file   string
	line   int
	fields []string
	quoted []bool
	err    error
}

func (r *record) fail(column string, err error) error {
	return &ParseError{File: r.file, Line: r.line, Column: column, Err: err}
}

func (r *record) str(i int, column string) string {
	if r.err == nil && !r.quoted[i] {
		r.err = r.fail(column, fmt.Errorf("%w: string %q is not double quoted", ErrMalformed, r.fields[i]))
	}
	return r.fields[i]
}

func (r *record) number(i int, column string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v := r.fields[i]
	if r.quoted[i] {
		r.err = r.fail(column, fmt.Errorf("%w: number %q is quoted", ErrMalformed, v))
		return "", false
	}
	if !numberPattern.MatchString(v) {
		r.err = r.fail(column, fmt.Errorf("%w: bad number %q", ErrMalformed, v))
		return "", false
	}
	return v, true
}

func (r *record) intField(i int, column string) int {
	v, ok := r.number(i, column)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = r.fail(column, fmt.Errorf("%w: bad integer %q", ErrMalformed, v))
		return 0
	}
	return n
}

func (r *record) floatField(i int, column string) float64 {
	v, ok := r.number(i, column)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = r.fail(column, fmt.Errorf("%w: bad number %q", ErrMalformed, v))
		return 0
	}
	return f
}

// eachRecord skips the header, then calls apply for each data row with at
// least minFields fields. The context is checked every cancelCheckInterval
// rows.
func eachRecord(ctx context.Context, file string, r io.Reader, minFields int, apply func(*record) error) (int, error) {
	tap := &rawTap{r: r}
	cr := csv.NewReader(tap)
	cr.Comma = fieldSeparator
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, csvError(file, err)
	}
	start := cr.InputOffset()
	tap.release(start)

	rows := 0
	var quoted []bool
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, csvError(file, err)
		}
		line, _ := cr.FieldPos(0)

		if len(fields) < minFields {
			return rows, &ParseError{File: file, Line: line,
				Err: fmt.Errorf("%w: %d fields, want %d", ErrMalformed, len(fields), minFields)}
		}

		end := cr.InputOffset()
		quoted = quotedFields(cr, tap.span(start, end), line, len(fields), quoted[:0])
		tap.release(end)
		start = end

		if err := apply(&record{file: file, line: line, fields: fields, quoted: quoted}); err != nil {
			return rows, err
		}
		rows++

		if rows%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return rows, fmt.Errorf("loading %s: %w", file, err)
			}
		}
	}
}

// quotedFields reports, for each field of the row just read, whether its raw
// text opens with a double quote. raw is the row's input bytes and firstLine
// the line it starts on; csv field positions are 1-based lines and byte
// columns.
func quotedFields(cr *csv.Reader, raw []byte, firstLine, n int, out []bool) []bool {
	lineStarts := []int{0}
	for i, b := range raw {
		if b == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	for i := 0; i < n; i++ {
		line, col := cr.FieldPos(i)
		q := false
		if k := line - firstLine; k >= 0 && k < len(lineStarts) {
			off := lineStarts[k] + col - 1
			q = off < len(raw) && raw[off] == '"'
		}
		out = append(out, q)
	}
	return out
}

// rawTap keeps the input bytes the csv reader has consumed since the last
// release, so a row's raw text can be inspected after it is parsed.
type rawTap struct {
	r    io.Reader
	buf  []byte
	base int64 // input offset of buf[0]
}

func (t *rawTap) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.buf = append(t.buf, p[:n]...)
	return n, err
}

// span returns input bytes [from, to). from must not precede the last release.
func (t *rawTap) span(from, to int64) []byte {
	return t.buf[from-t.base : to-t.base]
}

// release drops input bytes before off.
func (t *rawTap) release(off int64) {
	n := copy(t.buf, t.buf[off-t.base:])
	t.buf = t.buf[:n]
	t.base = off
}

func csvError(file string, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &ParseError{File: file, Line: perr.Line, Err: fmt.Errorf("%w: %v", ErrMalformed, perr.Err)}
	}
	return fmt.Errorf("reading %s: %w", file, err)
}
