package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
)

// StudentRepository implements ledger.StudentRepository on SQLite.
type StudentRepository struct {
	db *DB
}

var _ ledger.StudentRepository = (*StudentRepository)(nil)

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(db *DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, display_name, points,
	current_streak, longest_streak, homework_streak,
	low_engagement_weeks, missed_sessions, sessions_attended_this_month,
	version, created_at, updated_at`

// ─── Writes ─────────────────────────────────────────────────────────────────

// Create inserts the student and any history it already carries.
func (r *StudentRepository) Create(ctx context.Context, s ledger.StudentProfile) error {
	if s.ID == "" {
		return shared.ErrInvalidStudentID
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		st := s.Stats
		_, err := tx.ExecContext(ctx,
			`INSERT INTO students (`+studentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.DisplayName, s.Points,
			st.CurrentStreak, st.LongestStreak, st.HomeworkStreak,
			st.LowEngagementWeeks, st.MissedSessions, st.SessionsAttendedThisMonth,
			s.Version, formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
		)
		if err != nil {
			return err
		}
		return writeHistory(ctx, tx, s)
	})
	if err != nil {
		if isConstraintViolation(err) {
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// Save updates the student row guarded by its version and writes new records
// and waive changes in the same transaction.
func (r *StudentRepository) Save(ctx context.Context, s ledger.StudentProfile) (ledger.StudentProfile, error) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		st := s.Stats
		res, err := tx.ExecContext(ctx, `
			UPDATE students SET
				display_name = ?,
				points = ?,
				current_streak = ?,
				longest_streak = ?,
				homework_streak = ?,
				low_engagement_weeks = ?,
				missed_sessions = ?,
				sessions_attended_this_month = ?,
				updated_at = ?,
				version = version + 1
			WHERE id = ? AND version = ?`,
			s.DisplayName, s.Points,
			st.CurrentStreak, st.LongestStreak, st.HomeworkStreak,
			st.LowEngagementWeeks, st.MissedSessions, st.SessionsAttendedThisMonth,
			formatTime(s.UpdatedAt),
			s.ID, s.Version,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return missOrStale(ctx, tx, s.ID)
		}
		return writeHistory(ctx, tx, s)
	})
	if err != nil {
		if shared.IsConflict(err) || shared.IsNotFound(err) {
			return ledger.StudentProfile{}, err
		}
		return ledger.StudentProfile{}, fmt.Errorf("failed to save student %s: %w", s.ID, err)
	}

	saved := s.Clone()
	saved.Version = s.Version + 1
	return saved, nil
}

func missOrStale(ctx context.Context, tx *sql.Tx, id string) error {
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return shared.ErrStudentNotFound
	}
	return shared.ErrStudentVersionStale
}

// writeHistory upserts records. Existing penalties only take a first waive;
// existing bonuses are never rewritten.
func writeHistory(ctx context.Context, tx *sql.Tx, s ledger.StudentProfile) error {
	penaltyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO penalty_records (
			id, student_id, position, type, points_deducted, reason, applied_at, applied_by,
			waived, waived_by, waived_at, waived_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			waived = excluded.waived,
			waived_by = excluded.waived_by,
			waived_at = excluded.waived_at,
			waived_reason = excluded.waived_reason
		WHERE penalty_records.waived = 0 AND excluded.waived = 1`)
	if err != nil {
		return fmt.Errorf("prepare penalty upsert: %w", err)
	}
	defer penaltyStmt.Close()

	for i, p := range s.Stats.PenaltyHistory {
		var waivedAt sql.NullString
		if p.WaivedAt != nil {
			waivedAt = sql.NullString{String: formatTime(*p.WaivedAt), Valid: true}
		}
		if _, err := penaltyStmt.ExecContext(ctx,
			p.ID, s.ID, i, string(p.Type), p.PointsDeducted, p.Reason, formatTime(p.AppliedAt), string(p.AppliedBy),
			boolToInt(p.Waived), p.WaivedBy, waivedAt, p.WaivedReason,
		); err != nil {
			return fmt.Errorf("write penalty %s: %w", p.ID, err)
		}
	}

	bonusStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bonus_records (
			id, student_id, position, type, points_awarded, reason, awarded_at, awarded_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare bonus insert: %w", err)
	}
	defer bonusStmt.Close()

	for i, b := range s.Stats.BonusHistory {
		if _, err := bonusStmt.ExecContext(ctx,
			b.ID, s.ID, i, string(b.Type), b.PointsAwarded, b.Reason, formatTime(b.AwardedAt), string(b.AwardedBy),
		); err != nil {
			return fmt.Errorf("write bonus %s: %w", b.ID, err)
		}
	}
	return nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// GetByID loads the student with both histories.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (ledger.StudentProfile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.StudentProfile{}, shared.ErrStudentNotFound
	}
	if err != nil {
		return ledger.StudentProfile{}, fmt.Errorf("failed to load student %s: %w", id, err)
	}

	byID := map[string]*ledger.StudentProfile{s.ID: &s}
	if err := r.loadHistories(ctx, []string{s.ID}, byID); err != nil {
		return ledger.StudentProfile{}, err
	}
	return s, nil
}

// List returns a page of students ordered by id.
func (r *StudentRepository) List(ctx context.Context, opts ledger.ListOptions) ([]ledger.StudentProfile, error) {
	if opts.Limit <= 0 {
		opts.Limit = ledger.DefaultListOptions().Limit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students ORDER BY id LIMIT ? OFFSET ?`,
		opts.Limit, max(opts.Offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	var students []ledger.StudentProfile
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(students) == 0 {
		return students, nil
	}

	ids := make([]string, len(students))
	byID := make(map[string]*ledger.StudentProfile, len(students))
	for i := range students {
		ids[i] = students[i].ID
		byID[students[i].ID] = &students[i]
	}
	if err := r.loadHistories(ctx, ids, byID); err != nil {
		return nil, err
	}
	return students, nil
}

// Count returns the number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return n, nil
}

func (r *StudentRepository) loadHistories(ctx context.Context, ids []string, byID map[string]*ledger.StudentProfile) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, type, points_deducted, reason, applied_at, applied_by,
			waived, waived_by, waived_at, waived_reason
		FROM penalty_records
		WHERE student_id IN (`+placeholders+`)
		ORDER BY student_id, position`, args...)
	if err != nil {
		return fmt.Errorf("query penalties: %w", err)
	}
	for rows.Next() {
		var (
			p                ledger.PenaltyRecord
			studentID, pType string
			appliedAt, actor string
			waived           int
			waivedAt         sql.NullString
		)
		if err := rows.Scan(&p.ID, &studentID, &pType, &p.PointsDeducted, &p.Reason, &appliedAt, &actor,
			&waived, &p.WaivedBy, &waivedAt, &p.WaivedReason); err != nil {
			rows.Close()
			return fmt.Errorf("scan penalty: %w", err)
		}
		p.Type = ledger.PenaltyType(pType)
		p.AppliedBy = ledger.Actor(actor)
		p.Waived = waived != 0
		if p.AppliedAt, err = parseTime(appliedAt); err != nil {
			rows.Close()
			return err
		}
		if waivedAt.Valid {
			at, err := parseTime(waivedAt.String)
			if err != nil {
				rows.Close()
				return err
			}
			p.WaivedAt = &at
		}
		if s, ok := byID[studentID]; ok {
			s.Stats.PenaltyHistory = append(s.Stats.PenaltyHistory, p)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	bonusRows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, type, points_awarded, reason, awarded_at, awarded_by
		FROM bonus_records
		WHERE student_id IN (`+placeholders+`)
		ORDER BY student_id, position`, args...)
	if err != nil {
		return fmt.Errorf("query bonuses: %w", err)
	}
	defer bonusRows.Close()

	for bonusRows.Next() {
		var (
			b                ledger.BonusRecord
			studentID, bType string
			awardedAt, actor string
		)
		if err := bonusRows.Scan(&b.ID, &studentID, &bType, &b.PointsAwarded, &b.Reason, &awardedAt, &actor); err != nil {
			return fmt.Errorf("scan bonus: %w", err)
		}
		b.Type = ledger.BonusType(bType)
		b.AwardedBy = ledger.Actor(actor)
		if b.AwardedAt, err = parseTime(awardedAt); err != nil {
			return err
		}
		if s, ok := byID[studentID]; ok {
			s.Stats.BonusHistory = append(s.Stats.BonusHistory, b)
		}
	}
	return bonusRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (ledger.StudentProfile, error) {
	var (
		s                    ledger.StudentProfile
		createdAt, updatedAt string
	)
	st := &s.Stats
	if err := row.Scan(
		&s.ID, &s.DisplayName, &s.Points,
		&st.CurrentStreak, &st.LongestStreak, &st.HomeworkStreak,
		&st.LowEngagementWeeks, &st.MissedSessions, &st.SessionsAttendedThisMonth,
		&s.Version, &createdAt, &updatedAt,
	); err != nil {
		return ledger.StudentProfile{}, err
	}

	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.StudentProfile{}, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ledger.StudentProfile{}, err
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
