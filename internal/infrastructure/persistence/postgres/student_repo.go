package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/starboard-tutoring/pointsledger/internal/domain/ledger"
	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements ledger.StudentRepository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

var _ ledger.StudentRepository = (*StudentRepository)(nil)

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `
	id, display_name, points,
	current_streak, longest_streak, homework_streak,
	low_engagement_weeks, missed_sessions, sessions_attended_this_month,
	version, created_at, updated_at`

const penaltyColumns = `
	id, student_id, type, points_deducted, reason, applied_at, applied_by,
	waived, waived_by, waived_at, waived_reason`

const bonusColumns = `
	id, student_id, type, points_awarded, reason, awarded_at, awarded_by`

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts the student and any history it already carries.
func (r *StudentRepository) Create(ctx context.Context, s ledger.StudentProfile) error {
	if s.ID == "" {
		return shared.ErrInvalidStudentID
	}
	if s.Version == 0 {
		s.Version = 1
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	query := `INSERT INTO students (` + studentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		st := s.Stats
		_, err := tx.Exec(ctx, query,
			s.ID, s.DisplayName, s.Points,
			st.CurrentStreak, st.LongestStreak, st.HomeworkStreak,
			st.LowEngagementWeeks, st.MissedSessions, st.SessionsAttendedThisMonth,
			s.Version, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return writeHistory(ctx, tx, s)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// Save updates the student row guarded by its version, then writes new
// records and waive changes. The whole save is one transaction.
func (r *StudentRepository) Save(ctx context.Context, s ledger.StudentProfile) (ledger.StudentProfile, error) {
	query := `
		UPDATE students SET
			display_name = $3,
			points = $4,
			current_streak = $5,
			longest_streak = $6,
			homework_streak = $7,
			low_engagement_weeks = $8,
			missed_sessions = $9,
			sessions_attended_this_month = $10,
			updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	var newVersion int64
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		st := s.Stats
		err := tx.QueryRow(ctx, query,
			s.ID, s.Version, s.DisplayName, s.Points,
			st.CurrentStreak, st.LongestStreak, st.HomeworkStreak,
			st.LowEngagementWeeks, st.MissedSessions, st.SessionsAttendedThisMonth,
			s.UpdatedAt,
		).Scan(&newVersion)
		if IsNoRows(err) {
			return r.missOrStale(ctx, tx, s.ID)
		}
		if err != nil {
			return err
		}
		return writeHistory(ctx, tx, s)
	})
	switch {
	case err == nil:
	case shared.IsConflict(err) || shared.IsNotFound(err):
		return ledger.StudentProfile{}, err
	case IsForeignKeyViolation(err):
		// The student row was deleted between the update and the history insert.
		return ledger.StudentProfile{}, shared.ErrStudentNotFound
	case IsCheckViolation(err):
		return ledger.StudentProfile{}, shared.WrapError("student", "Save", shared.ErrValidation,
			"record violates a ledger constraint", err)
	default:
		return ledger.StudentProfile{}, fmt.Errorf("failed to save student %s: %w", s.ID, err)
	}

	saved := s.Clone()
	saved.Version = newVersion
	return saved, nil
}

// missOrStale tells a missing row from a version mismatch after a guarded
// update touched nothing.
func (r *StudentRepository) missOrStale(ctx context.Context, q Querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return shared.ErrStudentNotFound
	}
	return shared.ErrStudentVersionStale
}

// writeHistory upserts every record in one batch. Existing penalties only get
// their waive fields updated, and only while not yet waived. Existing bonuses
// are left alone.
func writeHistory(ctx context.Context, q Querier, s ledger.StudentProfile) error {
	const upsertPenalty = `
		INSERT INTO penalty_records (` + penaltyColumns + `, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			waived = EXCLUDED.waived,
			waived_by = EXCLUDED.waived_by,
			waived_at = EXCLUDED.waived_at,
			waived_reason = EXCLUDED.waived_reason
		WHERE penalty_records.waived = FALSE AND EXCLUDED.waived = TRUE
	`
	const insertBonus = `
		INSERT INTO bonus_records (` + bonusColumns + `, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for i, p := range s.Stats.PenaltyHistory {
		batch.Queue(upsertPenalty,
			p.ID, s.ID, string(p.Type), p.PointsDeducted, p.Reason, p.AppliedAt, string(p.AppliedBy),
			p.Waived, p.WaivedBy, p.WaivedAt, p.WaivedReason, i,
		)
	}
	for i, b := range s.Stats.BonusHistory {
		batch.Queue(insertBonus,
			b.ID, s.ID, string(b.Type), b.PointsAwarded, b.Reason, b.AwardedAt, string(b.AwardedBy), i,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("write history record %d: %w", i, err)
		}
	}
	return results.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByID loads the student and both histories from one snapshot.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (ledger.StudentProfile, error) {
	var profile ledger.StudentProfile

	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
		s, err := scanStudent(row)
		if err != nil {
			return err
		}

		profiles := map[string]*ledger.StudentProfile{s.ID: &s}
		if err := loadHistories(ctx, tx, []string{s.ID}, profiles); err != nil {
			return err
		}
		profile = s
		return nil
	})
	if err != nil {
		if IsNoRows(err) {
			return ledger.StudentProfile{}, shared.ErrStudentNotFound
		}
		return ledger.StudentProfile{}, fmt.Errorf("failed to load student %s: %w", id, err)
	}
	return profile, nil
}

// List returns a page of students ordered by id, with histories.
func (r *StudentRepository) List(ctx context.Context, opts ledger.ListOptions) ([]ledger.StudentProfile, error) {
	if opts.Limit <= 0 {
		opts.Limit = ledger.DefaultListOptions().Limit
	}

	var out []ledger.StudentProfile
	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+studentColumns+` FROM students ORDER BY id LIMIT $1 OFFSET $2`,
			opts.Limit, max(opts.Offset, 0),
		)
		if err != nil {
			return err
		}
		students, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.StudentProfile, error) {
			return scanStudent(row)
		})
		if err != nil {
			return err
		}
		if len(students) == 0 {
			return nil
		}

		ids := make([]string, len(students))
		byID := make(map[string]*ledger.StudentProfile, len(students))
		for i := range students {
			ids[i] = students[i].ID
			byID[students[i].ID] = &students[i]
		}
		if err := loadHistories(ctx, tx, ids, byID); err != nil {
			return err
		}
		out = students
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return out, nil
}

// Count returns the number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return count, nil
}

// loadHistories fills PenaltyHistory and BonusHistory for the given students.
func loadHistories(ctx context.Context, q Querier, ids []string, byID map[string]*ledger.StudentProfile) error {
	rows, err := q.Query(ctx,
		`SELECT `+penaltyColumns+` FROM penalty_records WHERE student_id = ANY($1) ORDER BY student_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("query penalties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         ledger.PenaltyRecord
			studentID string
			pType     string
			appliedBy string
		)
		if err := rows.Scan(
			&p.ID, &studentID, &pType, &p.PointsDeducted, &p.Reason, &p.AppliedAt, &appliedBy,
			&p.Waived, &p.WaivedBy, &p.WaivedAt, &p.WaivedReason,
		); err != nil {
			return fmt.Errorf("scan penalty: %w", err)
		}
		p.Type = ledger.PenaltyType(pType)
		p.AppliedBy = ledger.Actor(appliedBy)
		p.AppliedAt = p.AppliedAt.UTC()
		if p.WaivedAt != nil {
			at := p.WaivedAt.UTC()
			p.WaivedAt = &at
		}
		if s, ok := byID[studentID]; ok {
			s.Stats.PenaltyHistory = append(s.Stats.PenaltyHistory, p)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	bonusRows, err := q.Query(ctx,
		`SELECT `+bonusColumns+` FROM bonus_records WHERE student_id = ANY($1) ORDER BY student_id, position`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("query bonuses: %w", err)
	}
	defer bonusRows.Close()

	for bonusRows.Next() {
		var (
			b         ledger.BonusRecord
			studentID string
			bType     string
			awardedBy string
		)
		if err := bonusRows.Scan(&b.ID, &studentID, &bType, &b.PointsAwarded, &b.Reason, &b.AwardedAt, &awardedBy); err != nil {
			return fmt.Errorf("scan bonus: %w", err)
		}
		b.Type = ledger.BonusType(bType)
		b.AwardedBy = ledger.Actor(awardedBy)
		b.AwardedAt = b.AwardedAt.UTC()
		if s, ok := byID[studentID]; ok {
			s.Stats.BonusHistory = append(s.Stats.BonusHistory, b)
		}
	}
	return bonusRows.Err()
}

func scanStudent(row pgx.Row) (ledger.StudentProfile, error) {
	var s ledger.StudentProfile
	st := &s.Stats
	err := row.Scan(
		&s.ID, &s.DisplayName, &s.Points,
		&st.CurrentStreak, &st.LongestStreak, &st.HomeworkStreak,
		&st.LowEngagementWeeks, &st.MissedSessions, &st.SessionsAttendedThisMonth,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return ledger.StudentProfile{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
