package store

import "time"

// SiteLog is a free-form journal entry for a project.
type SiteLog struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	AuthorID   string    `json:"author_id"`
	Category   string    `json:"category"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	AuthorName string    `json:"author_name"`
}

func (db *DB) ListSiteLogs(projectID string, limit int) ([]SiteLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT id, project_id, author_id, category, content, created_at, author_name
		FROM site_logs WHERE project_id = ? ORDER BY created_at DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, storageErr("list site logs", err)
	}
	defer rows.Close()
	var out []SiteLog
	for rows.Next() {
		var l SiteLog
		var created string
		if err := rows.Scan(&l.ID, &l.ProjectID, &l.AuthorID, &l.Category, &l.Content, &created, &l.AuthorName); err != nil {
			return nil, storageErr("list site logs", err)
		}
		l.CreatedAt = scanTime(created)
		out = append(out, l)
	}
	return out, storageErr("list site logs", rows.Err())
}

func (db *DB) PutSiteLog(l SiteLog) error {
	_, err := db.exec("put site log", []string{TableSiteLogs},
		`INSERT OR REPLACE INTO site_logs (id, project_id, author_id, category, content, created_at, author_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ProjectID, l.AuthorID, l.Category, l.Content, formatTime(l.CreatedAt), l.AuthorName)
	return err
}
