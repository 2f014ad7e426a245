package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"
)

// EmbeddedVerse is a verse row with its pgvector embedding
type EmbeddedVerse struct {
	VerseID   string          `db:"verse_id"`
	Book      string          `db:"book"`
	Chapter   int             `db:"chapter"`
	Verse     int             `db:"verse"`
	Text      string          `db:"text"`
	Embedding pgvector.Vector `db:"embedding"`
}

// Reference formats the verse as "Book chapter:verse"
func (v EmbeddedVerse) Reference() string {
	return fmt.Sprintf("%s %d:%d", v.Book, v.Chapter, v.Verse)
}

// verseQuery returns verses in canonical order so exported ids are stable
const verseQuery = `
	SELECT v.osis_verse_id AS verse_id, b.osis_id AS book, v.chapter, v.verse, v.text, v.embedding
	FROM verses v
	JOIN books b ON v.book_id = b.id
	WHERE v.embedding IS NOT NULL
	ORDER BY b.id, v.chapter, v.verse
`

// EachEmbeddedVerse streams every embedded verse to fn in canonical order.
// A non-nil error from fn stops the iteration.
func EachEmbeddedVerse(ctx context.Context, pgDB *sqlx.DB, fn func(EmbeddedVerse) error) (int, error) {
	rows, err := pgDB.QueryxContext(ctx, verseQuery)
	if err != nil {
		return 0, fmt.Errorf("query embedded verses: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var v EmbeddedVerse
		if err := rows.StructScan(&v); err != nil {
			return count, fmt.Errorf("scan verse: %w", err)
		}
		if err := fn(v); err != nil {
			return count, err
		}
		count++
	}

	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate verses: %w", err)
	}
	return count, nil
}
