package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	ListLimitDefault = 100

	// fixed width so text ordering matches time ordering
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

	insertRunSQL = `INSERT INTO run (
			id, name, target, params, mean, ci_lower, ci_upper, sample_std_dev,
			samples, proposal_std_dev, accepted, proposed, seed, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunColumns = `SELECT
			id, name, target, params, mean, ci_lower, ci_upper, sample_std_dev,
			samples, proposal_std_dev, accepted, proposed, seed, duration_ms, created_at
		FROM run`

	selectRunSQL   = selectRunColumns + ` WHERE id = ?`
	selectRunsSQL  = selectRunColumns + ` WHERE name = COALESCE(?, name) ORDER BY created_at DESC, id LIMIT ?`
	deleteRunsSQL  = `DELETE FROM run`
	countRunsSQL   = `SELECT COUNT(*) FROM run`
	countTargetSQL = `SELECT COUNT(DISTINCT target) FROM run`
)

// RunRecord is the persisted summary of one sampler run. Samples themselves
// are never stored.
type RunRecord struct {
	ID             string             `json:"id" yaml:"id"`
	Name           string             `json:"name" yaml:"name"`
	Target         string             `json:"target" yaml:"target"`
	Params         map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Mean           float64            `json:"mean" yaml:"mean"`
	Lower          float64            `json:"ci_lower" yaml:"ci_lower"`
	Upper          float64            `json:"ci_upper" yaml:"ci_upper"`
	SampleStdDev   float64            `json:"sample_std_dev" yaml:"sample_std_dev"`
	Samples        int                `json:"samples" yaml:"samples"`
	ProposalStdDev float64            `json:"proposal_std_dev" yaml:"proposal_std_dev"`
	Accepted       int                `json:"accepted" yaml:"accepted"`
	Proposed       int                `json:"proposed" yaml:"proposed"`
	Seed           *uint64            `json:"seed,omitempty" yaml:"seed,omitempty"`
	DurationMS     int64              `json:"duration_ms" yaml:"duration_ms"`
	CreatedAt      time.Time          `json:"created_at" yaml:"created_at"`
}

// SaveRun inserts r, assigning its ID and creation time when unset.
func SaveRun(db *sql.DB, r *RunRecord) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil {
		return errors.New("run record required")
	}
	if r.Name == "" || r.Target == "" {
		return fmt.Errorf("name: %q and target: %q are both required", r.Name, r.Target)
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	var params *string
	if len(r.Params) > 0 {
		b, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		s := string(b)
		params = &s
	}

	var seed *string
	if r.Seed != nil {
		s := strconv.FormatUint(*r.Seed, 10)
		seed = &s
	}

	stmt, err := db.Prepare(rebind(db, insertRunSQL))
	if err != nil {
		return fmt.Errorf("failed to prepare run insert statement: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(
		r.ID, r.Name, r.Target, params, r.Mean, r.Lower, r.Upper, r.SampleStdDev,
		r.Samples, r.ProposalStdDev, r.Accepted, r.Proposed, seed, r.DurationMS,
		r.CreatedAt.UTC().Format(timeFormat),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// GetRun returns the run with id, or nil when there is none.
func GetRun(db *sql.DB, id string) (*RunRecord, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	row := db.QueryRow(rebind(db, selectRunSQL), id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first, optionally filtered by name.
func ListRuns(db *sql.DB, name *string, limit int) ([]*RunRecord, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 || limit > ListLimitDefault {
		limit = ListLimitDefault
	}

	rows, err := db.Query(rebind(db, selectRunsSQL), name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	list := make([]*RunRecord, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return list, nil
}

// DeleteRuns removes every run and returns how many were deleted.
func DeleteRuns(db *sql.DB) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	res, err := db.Exec(deleteRunsSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

// GetDataState returns row counts of the history store.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, q := range map[string]string{"run": countRunsSQL, "target": countTargetSQL} {
		var count int64
		if err := db.QueryRow(q).Scan(&count); err != nil {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}
	return state, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		r         RunRecord
		params    sql.NullString
		seed      sql.NullString
		createdAt string
	)

	if err := s.Scan(
		&r.ID, &r.Name, &r.Target, &params, &r.Mean, &r.Lower, &r.Upper, &r.SampleStdDev,
		&r.Samples, &r.ProposalStdDev, &r.Accepted, &r.Proposed, &seed, &r.DurationMS, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &r.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params of run %s: %w", r.ID, err)
		}
	}

	if seed.Valid {
		v, err := strconv.ParseUint(seed.String, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse seed of run %s: %w", r.ID, err)
		}
		r.Seed = &v
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at of run %s: %w", r.ID, err)
	}
	r.CreatedAt = t

	return &r, nil
}
