package registrydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kiwi-labs/kiwi/internal/directive"
	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/search"
	"github.com/kiwi-labs/kiwi/internal/version"
)

// DB is a registry stored in a single SQLite file.
type DB struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *DB) { d.log = l }
}

// WithClock overrides the time source (useful for testing).
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// Open opens (creating if needed) the registry database at path.
func Open(path string, opts ...Option) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers; one connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	d := &DB{db: db, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) initialize() error {
	if _, err := d.db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		return fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

var (
	_ registry.Store     = (*DB)(nil)
	_ registry.Publisher = (*DB)(nil)
)

const artifactColumns = `d.id, d.name, d.category, d.subcategory, d.description, d.tech_stack, d.tags,
	d.is_official, d.download_count, d.quality_score, d.created_at, d.updated_at`

// Get returns one version of name (latest when v is empty). The download is
// counted only when ctx is marked by registry.AsDownload.
func (d *DB) Get(ctx context.Context, name, v string) (*directive.Record, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	id, a, err := scanArtifact(tx.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM directives d WHERE d.name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &directive.NotFoundError{Name: name, Tiers: []directive.Tier{directive.TierRegistry}}
	}
	if err != nil {
		return nil, fmt.Errorf("loading directive %s: %w", name, err)
	}

	query := `SELECT version, content, content_hash, changelog, is_latest, created_at
		FROM directive_versions WHERE directive_id = ? AND is_latest = 1`
	args := []any{id}
	if v != "" {
		query = `SELECT version, content, content_hash, changelog, is_latest, created_at
			FROM directive_versions WHERE directive_id = ? AND version = ?`
		args = append(args, v)
	}
	ver, err := scanVersion(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %q: %w", v, &directive.NotFoundError{Name: name, Tiers: []directive.Tier{directive.TierRegistry}})
	}
	if err != nil {
		return nil, fmt.Errorf("loading version of %s: %w", name, err)
	}

	if !registry.IsDownload(ctx) {
		return &directive.Record{Artifact: a, Version: ver}, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE directives SET download_count = download_count + 1 WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("counting download: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing download: %w", err)
	}
	a.DownloadCount++
	return &directive.Record{Artifact: a, Version: ver}, nil
}

// Versions lists every version of name in ascending semver order.
func (d *DB) Versions(ctx context.Context, name string) ([]registry.VersionInfo, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `SELECT id FROM directives WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &directive.NotFoundError{Name: name, Tiers: []directive.Tier{directive.TierRegistry}}
	}
	if err != nil {
		return nil, fmt.Errorf("loading directive %s: %w", name, err)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT version, content_hash, changelog, is_latest, created_at
		FROM directive_versions WHERE directive_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", name, err)
	}
	defer rows.Close()

	var out []registry.VersionInfo
	for rows.Next() {
		var vi registry.VersionInfo
		var latest int
		var created string
		if err := rows.Scan(&vi.Version, &vi.ContentHash, &vi.Changelog, &latest, &created); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		vi.IsLatest = latest == 1
		vi.CreatedAt = parseTime(created)
		out = append(out, vi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", name, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		c, err := version.Compare(out[i].Version, out[j].Version)
		return err == nil && c < 0
	})
	return out, nil
}

// Search is a coarse OR match: a directive is returned when any term occurs
// in its name or description. Category, subcategory and tag filters are
// applied as given; ranking is left to the caller.
func (d *DB) Search(ctx context.Context, q registry.Query) ([]directive.Candidate, error) {
	var where []string
	var args []any

	if len(q.Terms) > 0 {
		var ors []string
		for _, t := range q.Terms {
			ors = append(ors, `instr(lower(d.name), ?) > 0 OR instr(lower(d.description), ?) > 0`)
			t = strings.ToLower(t)
			args = append(args, t, t)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if len(q.Categories) > 0 {
		where = append(where, inClause("lower(d.category)", len(q.Categories)))
		args = append(args, lowerAll(q.Categories)...)
	}
	if len(q.Subcategories) > 0 {
		where = append(where, inClause("lower(d.subcategory)", len(q.Subcategories)))
		args = append(args, lowerAll(q.Subcategories)...)
	}

	query := `SELECT ` + artifactColumns + `, v.version
		FROM directives d JOIN directive_versions v ON v.directive_id = d.id AND v.is_latest = 1`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY d.download_count DESC, d.name`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching directives: %w", err)
	}
	defer rows.Close()

	var out []directive.Candidate
	for rows.Next() {
		c := directive.Candidate{Tier: directive.TierRegistry}
		_, a, err := scanArtifact(rows, &c.Version)
		if err != nil {
			return nil, fmt.Errorf("scanning directive: %w", err)
		}
		c.Artifact = a
		if len(q.Tags) > 0 && !(search.Filter{Tags: q.Tags}).Matches(c) {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching directives: %w", err)
	}
	return out, nil
}

// List returns the latest version of every directive, sorted by name.
func (d *DB) List(ctx context.Context, categories []string) ([]registry.Listing, error) {
	query := `SELECT d.name, d.category, v.version, v.content_hash
		FROM directives d JOIN directive_versions v ON v.directive_id = d.id AND v.is_latest = 1`
	var args []any
	if len(categories) > 0 {
		query += ` WHERE ` + inClause("lower(d.category)", len(categories))
		args = lowerAll(categories)
	}
	query += ` ORDER BY d.name`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing directives: %w", err)
	}
	defer rows.Close()

	var out []registry.Listing
	for rows.Next() {
		var l registry.Listing
		if err := rows.Scan(&l.Name, &l.Category, &l.LatestVersion, &l.ContentHash); err != nil {
			return nil, fmt.Errorf("scanning listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing directives: %w", err)
	}
	return out, nil
}

// Publish adds a version, creating the directive if needed. The previous
// latest version is unflagged and the new one flagged in the same
// transaction. Existing versions are never overwritten.
func (d *DB) Publish(ctx context.Context, req registry.PublishRequest) (*registry.PublishResult, error) {
	if err := registry.ValidatePublish(req); err != nil {
		return nil, err
	}
	now := d.now().UTC().Format(time.RFC3339Nano)
	techStack, tags := encodeList(req.TechStack), encodeList(req.Tags)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	created := false
	err = tx.QueryRowContext(ctx, `SELECT id FROM directives WHERE name = ?`, req.Name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		created = true
		_, err = tx.ExecContext(ctx, `INSERT INTO directives
			(id, name, category, subcategory, description, tech_stack, tags, is_official, quality_score, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, req.Name, req.Category, req.Subcategory, req.Description, techStack, tags,
			boolInt(req.IsOfficial), req.QualityScore, now, now)
		if err != nil {
			return nil, fmt.Errorf("creating directive %s: %w", req.Name, err)
		}
	case err != nil:
		return nil, fmt.Errorf("loading directive %s: %w", req.Name, err)
	default:
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM directive_versions WHERE directive_id = ? AND version = ?`,
			id, req.Version).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking existing versions: %w", err)
		}
		if exists > 0 {
			return nil, fmt.Errorf("%s@%s: %w", req.Name, req.Version, registry.ErrVersionExists)
		}
		_, err = tx.ExecContext(ctx, `UPDATE directives
			SET category = ?, subcategory = ?, description = ?, tech_stack = ?, tags = ?, updated_at = ?
			WHERE id = ?`,
			req.Category, req.Subcategory, req.Description, techStack, tags, now, id)
		if err != nil {
			return nil, fmt.Errorf("updating directive %s: %w", req.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE directive_versions SET is_latest = 0 WHERE directive_id = ? AND is_latest = 1`, id); err != nil {
		return nil, fmt.Errorf("clearing latest flag: %w", err)
	}

	hash := directive.ContentHash([]byte(req.Content))
	_, err = tx.ExecContext(ctx, `INSERT INTO directive_versions
		(id, directive_id, version, content, content_hash, changelog, is_latest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		uuid.NewString(), id, req.Version, req.Content, hash, req.Changelog, now)
	if err != nil {
		return nil, fmt.Errorf("inserting version %s@%s: %w", req.Name, req.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing publish: %w", err)
	}
	d.log.Info("published", zap.String("name", req.Name), zap.String("version", req.Version), zap.Bool("created", created))
	return &registry.PublishResult{Name: req.Name, Version: req.Version, ContentHash: hash, Created: created}, nil
}

// Delete removes name and all of its versions.
func (d *DB) Delete(ctx context.Context, name string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM directives WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return &directive.NotFoundError{Name: name, Tiers: []directive.Tier{directive.TierRegistry}}
	}
	if err != nil {
		return fmt.Errorf("loading directive %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM directive_versions WHERE directive_id = ?`, id); err != nil {
		return fmt.Errorf("deleting versions of %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM directives WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting directive %s: %w", name, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanArtifact scans artifactColumns followed by any extra destinations.
func scanArtifact(row rowScanner, extra ...any) (string, directive.Artifact, error) {
	var (
		id                  string
		a                   directive.Artifact
		techStack, tags     string
		official            int
		createdAt, updateAt string
	)
	dest := []any{&id, &a.Name, &a.Category, &a.Subcategory, &a.Description, &techStack, &tags,
		&official, &a.DownloadCount, &a.QualityScore, &createdAt, &updateAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return "", a, err
	}
	a.TechStack = decodeList(techStack)
	a.Tags = decodeList(tags)
	a.IsOfficial = official == 1
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updateAt)
	return id, a, nil
}

func scanVersion(row rowScanner) (directive.Version, error) {
	var v directive.Version
	var latest int
	var created string
	if err := row.Scan(&v.Version, &v.Content, &v.ContentHash, &v.Changelog, &latest, &created); err != nil {
		return v, err
	}
	v.IsLatest = latest == 1
	v.CreatedAt = parseTime(created)
	return v, nil
}

func inClause(column string, n int) string {
	return column + " IN (" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

func lowerAll(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeList(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
