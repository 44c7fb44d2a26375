package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Employees ---

const employeeColumns = `id, employee_key, name, department, position, email, active, created_at, updated_at`

func scanEmployee(row pgx.Row, e *models.Employee) error {
	return row.Scan(&e.ID, &e.EmployeeKey, &e.Name, &e.Department, &e.Position,
		&e.Email, &e.Active, &e.CreatedAt, &e.UpdatedAt)
}

// InsertEmployee stores e and fills its ID and timestamps. A taken employee
// key yields ErrDuplicateKey.
func (s *PostgresStore) InsertEmployee(ctx context.Context, e *models.Employee) error {
	e.ID = uuid.New()
	e.Active = true
	err := s.pool.QueryRow(ctx,
		`INSERT INTO employees (id, employee_key, name, department, position, email, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`,
		e.ID, e.EmployeeKey, e.Name, e.Department, e.Position, e.Email, e.Active,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, employeeKeyUnique) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (s *PostgresStore) EmployeeKeyExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM employees WHERE employee_key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check employee key: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) GetEmployee(ctx context.Context, key string) (*models.Employee, error) {
	e := &models.Employee{}
	err := scanEmployee(s.pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE employee_key = $1`, key), e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListActiveEmployees(ctx context.Context) ([]models.Employee, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE active ORDER BY name, employee_key`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []models.Employee
	for rows.Next() {
		var e models.Employee
		if err := scanEmployee(rows, &e); err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// DeleteEmployee removes the employee and, by cascade, their attendance.
func (s *PostgresStore) DeleteEmployee(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM employees WHERE employee_key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Attendance ---

// InsertAttendance stores one check-in. A second check-in for the same
// employee and work date yields ErrAlreadyCheckedIn.
func (s *PostgresStore) InsertAttendance(ctx context.Context, a *models.Attendance) error {
	a.ID = uuid.New()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO attendance (id, employee_key, check_in, work_date, confidence_score, status, kiosk_id)
		 VALUES ($1, $2, $3, $4::date, $5, $6, $7) RETURNING created_at`,
		a.ID, a.EmployeeKey, a.CheckIn, a.Date, a.ConfidenceScore, string(a.Status), a.KioskID,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, attendanceDayUnique) {
			return ErrAlreadyCheckedIn
		}
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// ListAttendanceByDate returns the check-ins of one work date (YYYY-MM-DD),
// earliest first.
func (s *PostgresStore) ListAttendanceByDate(ctx context.Context, date string) ([]models.Attendance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, employee_key, check_in, work_date::text, confidence_score, status, kiosk_id, created_at
		 FROM attendance WHERE work_date = $1::date ORDER BY check_in`, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []models.Attendance
	for rows.Next() {
		var a models.Attendance
		var status string
		if err := rows.Scan(&a.ID, &a.EmployeeKey, &a.CheckIn, &a.Date,
			&a.ConfidenceScore, &status, &a.KioskID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		a.Status = models.AttendanceStatus(status)
		records = append(records, a)
	}
	return records, rows.Err()
}
