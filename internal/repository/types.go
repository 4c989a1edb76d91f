package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type Member struct {
	ID        string
	GuildID   string
	CreatedAt int64
}

type PlayedTrack struct {
	ID        int64
	MemberID  string
	TrackID   string
	Title     string
	Artists   string // comma separated
	Album     string
	Genres    string // comma separated
	SourceURI string
	PlayedAt  int64
}
