package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"flowengine/internal/domain"
)

const storeDBName = "flow_patterns.db"

// EncryptedStore implements domain.Store using a SQLCipher encrypted SQLite
// database. Session history and learned patterns stay on disk, encrypted
// with a locally generated key.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted pattern database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		level INTEGER NOT NULL DEFAULT 1,
		total_xp INTEGER NOT NULL DEFAULT 0,
		baseline_focus_minutes INTEGER NOT NULL DEFAULT 25,
		sessions_completed INTEGER NOT NULL DEFAULT 0,
		profile_focus REAL,
		profile_stamina REAL,
		profile_resilience REAL,
		profile_consistency REAL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		focus_score REAL NOT NULL DEFAULT 0,
		fatigue_score REAL NOT NULL DEFAULT 0,
		apm_average REAL NOT NULL DEFAULT 0,
		distraction_count INTEGER NOT NULL DEFAULT 0,
		resilience_score INTEGER NOT NULL DEFAULT 0,
		stamina_score INTEGER NOT NULL DEFAULT 0,
		xp_total INTEGER NOT NULL DEFAULT 0,
		xp_breakdown TEXT
	);

	CREATE TABLE IF NOT EXISTS app_patterns (
		app_name TEXT PRIMARY KEY,
		total_time_seconds INTEGER NOT NULL DEFAULT 0,
		flow_breaks INTEGER NOT NULL DEFAULT 0,
		productive_sessions INTEGER NOT NULL DEFAULT 0,
		distraction_sessions INTEGER NOT NULL DEFAULT 0,
		last_used INTEGER,
		is_blocked INTEGER NOT NULL DEFAULT 0,
		auto_blocked INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS flow_windows (
		date TEXT NOT NULL,
		hour INTEGER NOT NULL,
		flow_quality REAL NOT NULL,
		apm_average REAL NOT NULL,
		duration_minutes INTEGER NOT NULL,
		UNIQUE(date, hour)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- users ---

func (s *EncryptedStore) GetOrCreateUser(name string) (*domain.User, error) {
	u, err := s.scanUser(name)
	if err == nil {
		return u, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO users (name, level, total_xp, baseline_focus_minutes, sessions_completed, created_at)
		VALUES (?, 1, 0, 25, 0, ?)`,
		name, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.scanUser(name)
}

func (s *EncryptedStore) scanUser(name string) (*domain.User, error) {
	row := s.db.QueryRow(`
		SELECT id, name, level, total_xp, baseline_focus_minutes, sessions_completed,
		       profile_focus, profile_stamina, profile_resilience, profile_consistency
		FROM users WHERE name = ?`, name)

	var u domain.User
	var pf, ps, pr, pc sql.NullFloat64
	err := row.Scan(&u.ID, &u.Name, &u.Level, &u.TotalXP, &u.BaselineFocusMinutes,
		&u.SessionsCompleted, &pf, &ps, &pr, &pc)
	if err != nil {
		return nil, err
	}
	if pf.Valid {
		u.Profile = &domain.CognitiveProfile{
			Focus:       pf.Float64,
			Stamina:     ps.Float64,
			Resilience:  pr.Float64,
			Consistency: pc.Float64,
		}
	}
	return &u, nil
}

func (s *EncryptedStore) SaveUser(u *domain.User) error {
	var pf, ps, pr, pc interface{}
	if u.Profile != nil {
		pf, ps, pr, pc = u.Profile.Focus, u.Profile.Stamina, u.Profile.Resilience, u.Profile.Consistency
	}
	_, err := s.db.Exec(`
		UPDATE users
		SET level = ?, total_xp = ?, baseline_focus_minutes = ?, sessions_completed = ?,
		    profile_focus = ?, profile_stamina = ?, profile_resilience = ?, profile_consistency = ?
		WHERE id = ?`,
		u.Level, u.TotalXP, u.BaselineFocusMinutes, u.SessionsCompleted,
		pf, ps, pr, pc, u.ID)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// --- sessions ---

func (s *EncryptedStore) CreateSession(id string, start time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, start_time) VALUES (?, ?)`,
		id, start.Unix())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *EncryptedStore) CloseSession(rec domain.SessionRecord) error {
	breakdown, err := json.Marshal(rec.XPBreakdown)
	if err != nil {
		return fmt.Errorf("failed to encode xp breakdown: %w", err)
	}
	var end interface{}
	if rec.EndTime != nil {
		end = rec.EndTime.Unix()
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, start_time, end_time, duration_seconds, focus_score,
			fatigue_score, apm_average, distraction_count, resilience_score,
			stamina_score, xp_total, xp_breakdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_time = excluded.end_time,
			duration_seconds = excluded.duration_seconds,
			focus_score = excluded.focus_score,
			fatigue_score = excluded.fatigue_score,
			apm_average = excluded.apm_average,
			distraction_count = excluded.distraction_count,
			resilience_score = excluded.resilience_score,
			stamina_score = excluded.stamina_score,
			xp_total = excluded.xp_total,
			xp_breakdown = excluded.xp_breakdown`,
		rec.ID, rec.StartTime.Unix(), end, rec.DurationSeconds, rec.FocusScore,
		rec.FatigueScore, rec.APMAverage, rec.DistractionCount, rec.ResilienceScore,
		rec.StaminaScore, rec.XPTotal, string(breakdown))
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

func (s *EncryptedStore) RecentSessions(limit int) ([]domain.SessionRecord, error) {
	return s.querySessions(`
		SELECT id, start_time, end_time, duration_seconds, focus_score, fatigue_score,
		       apm_average, distraction_count, resilience_score, stamina_score,
		       xp_total, xp_breakdown
		FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
}

func (s *EncryptedStore) FirstSessions(n int) ([]domain.SessionRecord, error) {
	return s.querySessions(`
		SELECT id, start_time, end_time, duration_seconds, focus_score, fatigue_score,
		       apm_average, distraction_count, resilience_score, stamina_score,
		       xp_total, xp_breakdown
		FROM sessions WHERE end_time IS NOT NULL
		ORDER BY start_time ASC LIMIT ?`, n)
}

func (s *EncryptedStore) ClosedSessionsSince(days, limit int) ([]domain.SessionRecord, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	return s.querySessions(`
		SELECT id, start_time, end_time, duration_seconds, focus_score, fatigue_score,
		       apm_average, distraction_count, resilience_score, stamina_score,
		       xp_total, xp_breakdown
		FROM sessions
		WHERE end_time IS NOT NULL AND start_time >= ? AND duration_seconds > 0
		ORDER BY start_time DESC LIMIT ?`, cutoff, limit)
}

func (s *EncryptedStore) querySessions(query string, args ...interface{}) ([]domain.SessionRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		var start int64
		var end sql.NullInt64
		var breakdown sql.NullString
		if err := rows.Scan(&rec.ID, &start, &end, &rec.DurationSeconds, &rec.FocusScore,
			&rec.FatigueScore, &rec.APMAverage, &rec.DistractionCount,
			&rec.ResilienceScore, &rec.StaminaScore, &rec.XPTotal, &breakdown); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.StartTime = time.Unix(start, 0)
		if end.Valid {
			t := time.Unix(end.Int64, 0)
			rec.EndTime = &t
		}
		if breakdown.Valid && breakdown.String != "" {
			// A broken breakdown blob should not hide the whole row.
			_ = json.Unmarshal([]byte(breakdown.String), &rec.XPBreakdown)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *EncryptedStore) SessionStats(days int) (domain.SessionStats, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(duration_seconds), 0),
		       COALESCE(AVG(focus_score), 0),
		       COALESCE(SUM(distraction_count), 0)
		FROM sessions WHERE start_time >= ?`, cutoff)

	var stats domain.SessionStats
	if err := row.Scan(&stats.TotalSessions, &stats.TotalSeconds,
		&stats.AvgFocusScore, &stats.TotalDistractions); err != nil {
		return stats, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	return stats, nil
}

// --- app patterns ---

func (s *EncryptedStore) LogAppUsage(appName string, durationSeconds int, productive, brokeFlow bool) error {
	breaks := 0
	if brokeFlow {
		breaks = 1
	}
	prod := 0
	if productive {
		prod = 1
	}
	distr := 0
	if brokeFlow {
		distr = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO app_patterns (app_name, total_time_seconds, flow_breaks,
			productive_sessions, distraction_sessions, last_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(app_name) DO UPDATE SET
			total_time_seconds = total_time_seconds + excluded.total_time_seconds,
			flow_breaks = flow_breaks + excluded.flow_breaks,
			productive_sessions = productive_sessions + excluded.productive_sessions,
			distraction_sessions = distraction_sessions + excluded.distraction_sessions,
			last_used = excluded.last_used`,
		appName, durationSeconds, breaks, prod, distr, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to log app usage: %w", err)
	}
	return nil
}

func (s *EncryptedStore) AppPatterns(limit int) ([]domain.AppPattern, error) {
	rows, err := s.db.Query(`
		SELECT app_name, total_time_seconds, flow_breaks, productive_sessions,
		       distraction_sessions, COALESCE(last_used, 0), is_blocked, auto_blocked
		FROM app_patterns ORDER BY flow_breaks DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query app patterns: %w", err)
	}
	defer rows.Close()

	var out []domain.AppPattern
	for rows.Next() {
		var p domain.AppPattern
		var lastUsed int64
		if err := rows.Scan(&p.AppName, &p.TotalTimeSeconds, &p.FlowBreaks,
			&p.ProductiveSessions, &p.DistractionSessions, &lastUsed,
			&p.IsBlocked, &p.AutoBlocked); err != nil {
			return nil, fmt.Errorf("failed to scan app pattern: %w", err)
		}
		p.LastUsed = time.Unix(lastUsed, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *EncryptedStore) FrequentDistractions(threshold int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT app_name FROM app_patterns
		WHERE flow_breaks >= ? AND auto_blocked = 0`, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequent distractions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *EncryptedStore) AutoBlockApp(appName string) error {
	_, err := s.db.Exec(`
		UPDATE app_patterns SET is_blocked = 1, auto_blocked = 1 WHERE app_name = ?`,
		appName)
	if err != nil {
		return fmt.Errorf("failed to auto-block app: %w", err)
	}
	return nil
}

// --- flow windows ---

func (s *EncryptedStore) LogFlowWindow(w domain.FlowWindow) error {
	_, err := s.db.Exec(`
		INSERT INTO flow_windows (date, hour, flow_quality, apm_average, duration_minutes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, hour) DO UPDATE SET
			flow_quality = (flow_quality + excluded.flow_quality) / 2,
			apm_average = (apm_average + excluded.apm_average) / 2,
			duration_minutes = duration_minutes + excluded.duration_minutes`,
		w.Date.Format("2006-01-02"), w.Hour, w.FlowQuality, w.APMAverage, w.DurationMinutes)
	if err != nil {
		return fmt.Errorf("failed to log flow window: %w", err)
	}
	return nil
}

func (s *EncryptedStore) PeakFlowHours(days int) ([]int, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`
		SELECT hour FROM flow_windows
		WHERE date >= ?
		GROUP BY hour
		HAVING COUNT(*) >= 2 AND AVG(flow_quality) >= 70
		ORDER BY AVG(flow_quality) DESC LIMIT 5`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query peak hours: %w", err)
	}
	defer rows.Close()

	var hours []int
	for rows.Next() {
		var h int
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

func (s *EncryptedStore) HourlyQuality(days int) ([]domain.HourQuality, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.Query(`
		SELECT hour, AVG(flow_quality), COUNT(*)
		FROM flow_windows
		WHERE date >= ?
		GROUP BY hour HAVING COUNT(*) >= 2
		ORDER BY hour`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly quality: %w", err)
	}
	defer rows.Close()

	var out []domain.HourQuality
	for rows.Next() {
		var h domain.HourQuality
		if err := rows.Scan(&h.Hour, &h.AvgQuality, &h.Sessions); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	return s.db.Close()
}

// Ensure EncryptedStore implements domain.Store.
var _ domain.Store = (*EncryptedStore)(nil)
