package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"brandscout/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite database holding creators, briefs, snapshots,
// items, reports, and the research cache.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS creators (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  user_id INTEGER NOT NULL,
	  name TEXT NOT NULL,
	  primary_platform TEXT,
	  notes TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS social_accounts (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  creator_id INTEGER NOT NULL REFERENCES creators(id),
	  platform TEXT NOT NULL,
	  profile_url TEXT NOT NULL,
	  handle TEXT,
	  last_fetched_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_creator ON social_accounts(creator_id);
	CREATE TABLE IF NOT EXISTS briefs (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  user_id INTEGER NOT NULL,
	  name TEXT NOT NULL,
	  description TEXT,
	  brand_context TEXT,
	  status TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS brief_creators (
	  brief_id INTEGER NOT NULL REFERENCES briefs(id),
	  creator_id INTEGER NOT NULL REFERENCES creators(id),
	  PRIMARY KEY (brief_id, creator_id)
	);
	CREATE TABLE IF NOT EXISTS platform_snapshots (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  account_id INTEGER NOT NULL REFERENCES social_accounts(id),
	  followers INTEGER,
	  following INTEGER,
	  total_posts INTEGER,
	  engagement_rate REAL,
	  demographics TEXT,
	  source TEXT NOT NULL,
	  snapshot_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_account ON platform_snapshots(account_id, snapshot_at);
	CREATE TABLE IF NOT EXISTS items (
	  account_id INTEGER NOT NULL REFERENCES social_accounts(id),
	  item_id TEXT NOT NULL,
	  platform TEXT NOT NULL,
	  url TEXT,
	  title TEXT,
	  caption TEXT,
	  posted_at INTEGER,
	  likes INTEGER,
	  comments INTEGER,
	  views INTEGER,
	  duration_s INTEGER,
	  safety_score REAL,
	  alignment_score REAL,
	  PRIMARY KEY (account_id, item_id)
	);
	CREATE TABLE IF NOT EXISTS reports (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  brief_id INTEGER NOT NULL REFERENCES briefs(id),
	  creator_id INTEGER NOT NULL REFERENCES creators(id),
	  overall_score REAL,
	  alignment_score REAL,
	  summary TEXT,
	  strengths TEXT,
	  concerns TEXT,
	  recommendations TEXT,
	  cost REAL,
	  model_used TEXT,
	  video_insights TEXT,
	  generated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_pair ON reports(brief_id, creator_id, generated_at);
	CREATE TABLE IF NOT EXISTS research_cache (
	  query_hash TEXT PRIMARY KEY,
	  query_text TEXT NOT NULL,
	  query_type TEXT,
	  creator_id INTEGER,
	  account_id INTEGER,
	  job_id TEXT,
	  status TEXT NOT NULL,
	  result TEXT,
	  cost REAL,
	  input_tokens INTEGER,
	  output_tokens INTEGER,
	  created_at INTEGER NOT NULL,
	  completed_at INTEGER,
	  expires_at INTEGER
	);
	`)
	return err
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0).UTC()
}

// AddCreator inserts a creator and returns its ID.
func (d *DB) AddCreator(ctx context.Context, c model.Creator) (int64, error) {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO creators(user_id, name, primary_platform, notes, created_at) VALUES(?,?,?,?,?)`,
		c.UserID, c.Name, string(c.PrimaryPlatform), c.Notes, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) GetCreator(ctx context.Context, id int64) (model.Creator, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, user_id, name, primary_platform, notes, created_at FROM creators WHERE id=?`, id)
	var c model.Creator
	var platform string
	var created int64
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &platform, &c.Notes, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Creator{}, ErrNotFound
		}
		return model.Creator{}, err
	}
	c.PrimaryPlatform = model.Platform(platform)
	c.CreatedAt = timeOrZero(created)
	return c, nil
}

// AddAccount links a profile URL to a creator.
func (d *DB) AddAccount(ctx context.Context, a model.SocialAccount) (int64, error) {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO social_accounts(creator_id, platform, profile_url, handle, last_fetched_at) VALUES(?,?,?,?,?)`,
		a.CreatorID, string(a.Platform), a.ProfileURL, a.Handle, unixOrZero(a.LastFetchedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAccounts returns a creator's linked accounts.
func (d *DB) ListAccounts(ctx context.Context, creatorID int64) ([]model.SocialAccount, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, creator_id, platform, profile_url, handle, last_fetched_at FROM social_accounts WHERE creator_id=? ORDER BY id`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SocialAccount
	for rows.Next() {
		var a model.SocialAccount
		var platform string
		var fetched int64
		if err := rows.Scan(&a.ID, &a.CreatorID, &platform, &a.ProfileURL, &a.Handle, &fetched); err != nil {
			return nil, err
		}
		a.Platform = model.Platform(platform)
		a.LastFetchedAt = timeOrZero(fetched)
		out = append(out, a)
	}
	return out, rows.Err()
}

// TouchAccount records a successful fetch time.
func (d *DB) TouchAccount(ctx context.Context, accountID int64, at time.Time) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE social_accounts SET last_fetched_at=? WHERE id=?`, at.Unix(), accountID)
	return err
}

// AddBrief inserts a campaign brief and returns its ID.
func (d *DB) AddBrief(ctx context.Context, b model.Brief) (int64, error) {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO briefs(user_id, name, description, brand_context, status, created_at) VALUES(?,?,?,?,?,?)`,
		b.UserID, b.Name, b.Description, b.BrandContext, b.Status, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) GetBrief(ctx context.Context, id int64) (model.Brief, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, brand_context, status, created_at FROM briefs WHERE id=?`, id)
	var b model.Brief
	var created int64
	if err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Description, &b.BrandContext, &b.Status, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Brief{}, ErrNotFound
		}
		return model.Brief{}, err
	}
	b.CreatedAt = timeOrZero(created)
	return b, nil
}

// LinkBriefCreator attaches a creator to a brief. Idempotent.
func (d *DB) LinkBriefCreator(ctx context.Context, briefID, creatorID int64) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO brief_creators(brief_id, creator_id) VALUES(?,?) ON CONFLICT DO NOTHING`,
		briefID, creatorID)
	return err
}

// BriefCreators returns the creator IDs attached to a brief.
func (d *DB) BriefCreators(ctx context.Context, briefID int64) ([]int64, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT creator_id FROM brief_creators WHERE brief_id=? ORDER BY creator_id`, briefID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AddSnapshot appends a point-in-time stats record.
func (d *DB) AddSnapshot(ctx context.Context, s model.PlatformSnapshot) (int64, error) {
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO platform_snapshots(account_id, followers, following, total_posts, engagement_rate, demographics, source, snapshot_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		s.AccountID, s.Followers, s.Following, s.TotalPosts, s.EngagementRate, s.Demographics, string(s.Source), unixOrZero(s.SnapshotAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestSnapshot returns the newest snapshot for an account.
func (d *DB) LatestSnapshot(ctx context.Context, accountID int64) (model.PlatformSnapshot, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, account_id, followers, following, total_posts, engagement_rate, COALESCE(demographics,''), source, snapshot_at
		 FROM platform_snapshots WHERE account_id=? ORDER BY snapshot_at DESC, id DESC LIMIT 1`, accountID)
	var s model.PlatformSnapshot
	var source string
	var at int64
	if err := row.Scan(&s.ID, &s.AccountID, &s.Followers, &s.Following, &s.TotalPosts, &s.EngagementRate, &s.Demographics, &source, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PlatformSnapshot{}, ErrNotFound
		}
		return model.PlatformSnapshot{}, err
	}
	s.Source = model.DataSource(source)
	s.SnapshotAt = timeOrZero(at)
	return s, nil
}

// SetSnapshotDemographics writes research demographics onto the newest
// snapshot for an account.
func (d *DB) SetSnapshotDemographics(ctx context.Context, accountID int64, demographics string) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE platform_snapshots SET demographics=?
		 WHERE id=(SELECT id FROM platform_snapshots WHERE account_id=? ORDER BY snapshot_at DESC, id DESC LIMIT 1)`,
		demographics, accountID)
	return err
}

// SaveItems upserts fetched content items for an account.
func (d *DB) SaveItems(ctx context.Context, accountID int64, items []model.Item) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, it := range items {
		// Refetches keep any analysis scores already written.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items(account_id, item_id, platform, url, title, caption, posted_at, likes, comments, views, duration_s, safety_score, alignment_score)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(account_id, item_id) DO UPDATE SET
			   likes=excluded.likes, comments=excluded.comments, views=excluded.views, caption=excluded.caption`,
			accountID, it.ID, string(it.Platform), it.URL, it.Title, it.Caption,
			unixOrZero(it.PostedAt), it.Likes, it.Comments, it.Views, it.DurationS,
			it.SafetyScore, it.AlignmentScore); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetItemScores writes per-item analysis scores onto a saved item.
func (d *DB) SetItemScores(ctx context.Context, accountID int64, itemID string, safety, alignment float64) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE items SET safety_score=?, alignment_score=? WHERE account_id=? AND item_id=?`,
		safety, alignment, accountID, itemID)
	return err
}

// ListItems returns an account's saved items, newest first.
func (d *DB) ListItems(ctx context.Context, accountID int64) ([]model.Item, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT item_id, platform, url, title, caption, posted_at, likes, comments, views, duration_s, safety_score, alignment_score
		 FROM items WHERE account_id=? ORDER BY posted_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		var (
			it       model.Item
			platform string
			posted   int64
		)
		if err := rows.Scan(&it.ID, &platform, &it.URL, &it.Title, &it.Caption,
			&posted, &it.Likes, &it.Comments, &it.Views, &it.DurationS,
			&it.SafetyScore, &it.AlignmentScore); err != nil {
			return nil, err
		}
		it.AccountID = accountID
		it.Platform = model.Platform(platform)
		it.PostedAt = timeOrZero(posted)
		items = append(items, it)
	}
	return items, rows.Err()
}

// AddReport appends a report. Reports are never updated in place; the
// current report for a pair is the newest by generated_at.
func (d *DB) AddReport(ctx context.Context, r model.AnalysisReport) (int64, error) {
	strengths, _ := json.Marshal(r.Strengths)
	concerns, _ := json.Marshal(r.Concerns)
	recs, _ := json.Marshal(r.Recommendations)
	insights, _ := json.Marshal(r.VideoInsights)
	res, err := d.sql.ExecContext(ctx,
		`INSERT INTO reports(brief_id, creator_id, overall_score, alignment_score, summary, strengths, concerns, recommendations, cost, model_used, video_insights, generated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.BriefID, r.CreatorID, r.OverallScore, r.AlignmentScore, r.Summary,
		string(strengths), string(concerns), string(recs), r.Cost, r.ModelUsed,
		string(insights), unixOrZero(r.GeneratedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetLatestReport returns the newest report for a (brief, creator) pair.
func (d *DB) GetLatestReport(ctx context.Context, briefID, creatorID int64) (model.AnalysisReport, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, brief_id, creator_id, overall_score, alignment_score, summary, strengths, concerns, recommendations, cost, model_used, video_insights, generated_at
		 FROM reports WHERE brief_id=? AND creator_id=? ORDER BY generated_at DESC, id DESC LIMIT 1`,
		briefID, creatorID)
	var r model.AnalysisReport
	var strengths, concerns, recs, insights string
	var generated int64
	if err := row.Scan(&r.ID, &r.BriefID, &r.CreatorID, &r.OverallScore, &r.AlignmentScore, &r.Summary,
		&strengths, &concerns, &recs, &r.Cost, &r.ModelUsed, &insights, &generated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AnalysisReport{}, ErrNotFound
		}
		return model.AnalysisReport{}, err
	}
	_ = json.Unmarshal([]byte(strengths), &r.Strengths)
	_ = json.Unmarshal([]byte(concerns), &r.Concerns)
	_ = json.Unmarshal([]byte(recs), &r.Recommendations)
	_ = json.Unmarshal([]byte(insights), &r.VideoInsights)
	r.GeneratedAt = timeOrZero(generated)
	return r, nil
}

// GetResearchEntry returns the cache entry for a query hash. Entries
// exist regardless of status; callers decide what counts as a hit.
func (d *DB) GetResearchEntry(ctx context.Context, queryHash string) (model.ResearchCacheEntry, bool, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT query_hash, query_text, COALESCE(query_type,''), creator_id, account_id, COALESCE(job_id,''), status,
		        COALESCE(result,''), cost, input_tokens, output_tokens, created_at, completed_at, expires_at
		 FROM research_cache WHERE query_hash=?`, queryHash)
	var e model.ResearchCacheEntry
	var created, completed, expires int64
	if err := row.Scan(&e.QueryHash, &e.QueryText, &e.QueryType, &e.CreatorID, &e.AccountID, &e.JobID,
		&e.Status, &e.Result, &e.Cost, &e.InputTokens, &e.OutputTokens, &created, &completed, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ResearchCacheEntry{}, false, nil
		}
		return model.ResearchCacheEntry{}, false, err
	}
	e.CreatedAt = timeOrZero(created)
	e.CompletedAt = timeOrZero(completed)
	e.ExpiresAt = timeOrZero(expires)
	return e, true, nil
}

// PutResearchEntry upserts a cache entry by query hash. Last write wins.
func (d *DB) PutResearchEntry(ctx context.Context, e model.ResearchCacheEntry) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO research_cache(query_hash, query_text, query_type, creator_id, account_id, job_id, status, result, cost, input_tokens, output_tokens, created_at, completed_at, expires_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(query_hash) DO UPDATE SET
		   query_text=excluded.query_text, query_type=excluded.query_type,
		   creator_id=excluded.creator_id, account_id=excluded.account_id,
		   job_id=excluded.job_id, status=excluded.status, result=excluded.result,
		   cost=excluded.cost, input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
		   completed_at=excluded.completed_at, expires_at=excluded.expires_at`,
		e.QueryHash, e.QueryText, e.QueryType, e.CreatorID, e.AccountID, e.JobID, e.Status, e.Result,
		e.Cost, e.InputTokens, e.OutputTokens, unixOrZero(e.CreatedAt), unixOrZero(e.CompletedAt), unixOrZero(e.ExpiresAt))
	return err
}
