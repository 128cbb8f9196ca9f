package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/edutown/economy/internal/economy/domain/money"
	"github.com/edutown/economy/internal/economy/storage"
)

// CreateStudent inserts one school member record.
func (s *Store) CreateStudent(ctx context.Context, student storage.Student) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	studentID := strings.TrimSpace(student.ID)
	schoolID := strings.TrimSpace(student.SchoolID)
	townClass := strings.TrimSpace(student.TownClass)
	if studentID == "" {
		return fmt.Errorf("student id is required")
	}
	if schoolID == "" {
		return fmt.Errorf("school id is required")
	}
	if townClass == "" {
		return fmt.Errorf("town class is required")
	}
	createdAt := student.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var jobTitle, jobSalary any
	if student.Employed {
		jobTitle = student.JobTitle
		jobSalary = int64(student.JobSalary)
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO students (id, school_id, town_class, display_name, job_title, job_salary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		studentID,
		schoolID,
		townClass,
		strings.TrimSpace(student.DisplayName),
		jobTitle,
		jobSalary,
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// GetStudent returns one school member by user id.
func (s *Store) GetStudent(ctx context.Context, schoolID, userID string) (storage.Student, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Student{}, err
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, school_id, town_class, display_name, job_title, job_salary, created_at
		   FROM students
		  WHERE school_id = ? AND id = ?`,
		schoolID, userID,
	)
	student, err := scanStudent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Student{}, storage.ErrNotFound
		}
		return storage.Student{}, fmt.Errorf("get student: %w", err)
	}
	return student, nil
}

// ListStudentsByTownClass returns the members of one town class.
func (s *Store) ListStudentsByTownClass(ctx context.Context, schoolID, townClass string) ([]storage.Student, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, school_id, town_class, display_name, job_title, job_salary, created_at
		   FROM students
		  WHERE school_id = ? AND town_class = ?
		  ORDER BY id ASC`,
		schoolID, townClass,
	)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []storage.Student
	for rows.Next() {
		student, err := scanStudent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list students: %w", err)
		}
		students = append(students, student)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

func scanStudent(scan func(dest ...any) error) (storage.Student, error) {
	var student storage.Student
	var jobTitle sql.NullString
	var jobSalary sql.NullInt64
	var createdAt int64
	if err := scan(
		&student.ID,
		&student.SchoolID,
		&student.TownClass,
		&student.DisplayName,
		&jobTitle,
		&jobSalary,
		&createdAt,
	); err != nil {
		return storage.Student{}, err
	}
	student.JobTitle = scanNullString(jobTitle)
	if jobSalary.Valid {
		student.JobSalary = money.Cents(jobSalary.Int64)
		student.Employed = true
	}
	student.CreatedAt = fromMillis(createdAt)
	return student, nil
}
