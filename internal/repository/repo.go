package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/juckr/djspot/internal/music"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// EnsureMember inserts the member if unseen; existing rows are left
// untouched.
func (r *Repo) EnsureMember(ctx context.Context, memberID, guildID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO members(id, guild_id, created_at) VALUES (?,?,?)`,
		memberID, guildID, time.Now().Unix(),
	)
	return err
}

// EnsureMembers bulk-registers members in one transaction, used when a
// guild's member list is first downloaded.
func (r *Repo) EnsureMembers(ctx context.Context, members []Member) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO members(id, guild_id, created_at) VALUES (?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, m.ID, m.GuildID, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddPlayedTrack appends one listening-history row for the member.
func (r *Repo) AddPlayedTrack(ctx context.Context, memberID string, t music.Track) error {
	var genres []string
	for _, a := range t.Artists {
		genres = append(genres, a.Genres...)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO played_tracks(member_id, track_id, title, artists, album, genres, source_uri, played_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		memberID, t.ID, t.Title,
		strings.Join(t.ArtistNames(), ", "),
		t.Album.Name,
		strings.Join(genres, ", "),
		t.SourceURI,
		time.Now().Unix(),
	)
	return err
}

func (r *Repo) RecentTracks(ctx context.Context, memberID string, limit int) ([]PlayedTrack, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, track_id, title, artists, album, genres, source_uri, played_at
		FROM played_tracks WHERE member_id = ?
		ORDER BY played_at DESC LIMIT ?`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayedTrack
	for rows.Next() {
		var pt PlayedTrack
		if err := rows.Scan(
			&pt.ID, &pt.MemberID, &pt.TrackID, &pt.Title,
			&pt.Artists, &pt.Album, &pt.Genres, &pt.SourceURI, &pt.PlayedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}
