package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/studenthub/internal/application"
)

// CreateCourse stores a course and its meeting rows in one transaction.
func (s *Store) CreateCourse(ctx context.Context, course application.Course) (application.Course, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO courses (id, user_id, name, code, instructor, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			course.ID, course.UserID, course.Name, course.Code, course.Instructor,
			formatTime(course.CreatedAt), formatTime(course.UpdatedAt))
		if err != nil {
			return err
		}
		return insertMeetings(ctx, tx, course.ID, course.Meetings)
	})
	if err != nil {
		return application.Course{}, mapError(err)
	}
	return course, nil
}

// GetCourse retrieves a course with its meetings.
func (s *Store) GetCourse(ctx context.Context, id string) (application.Course, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, code, instructor, created_at, updated_at
		 FROM courses WHERE id = ?`, id)

	course, err := scanCourse(row)
	if err != nil {
		return application.Course{}, err
	}
	course.Meetings, err = s.loadMeetings(ctx, course.ID)
	if err != nil {
		return application.Course{}, err
	}
	return course, nil
}

// UpdateCourse replaces a course and rewrites its meeting rows.
func (s *Store) UpdateCourse(ctx context.Context, course application.Course) (application.Course, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE courses SET name = ?, code = ?, instructor = ?, updated_at = ? WHERE id = ?`,
			course.Name, course.Code, course.Instructor, formatTime(course.UpdatedAt), course.ID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return application.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM course_meetings WHERE course_id = ?`, course.ID); err != nil {
			return err
		}
		return insertMeetings(ctx, tx, course.ID, course.Meetings)
	})
	if err != nil {
		return application.Course{}, mapError(err)
	}
	return course, nil
}

// DeleteCourse removes a course; meetings cascade.
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return application.ErrNotFound
	}
	return nil
}

// ListCoursesByUser returns a user's courses with meetings, ordered by name.
func (s *Store) ListCoursesByUser(ctx context.Context, userID string) ([]application.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, code, instructor, created_at, updated_at
		 FROM courses WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	courses := make([]application.Course, 0)
	for rows.Next() {
		course, err := scanCourseRows(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range courses {
		courses[i].Meetings, err = s.loadMeetings(ctx, courses[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return courses, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed (%v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertMeetings(ctx context.Context, tx *sql.Tx, courseID string, meetings []application.CourseMeeting) error {
	for i, meeting := range meetings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO course_meetings (course_id, day, start_time, end_time, room, position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			courseID, meeting.Day, meeting.StartTime, meeting.EndTime, meeting.Room, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadMeetings(ctx context.Context, courseID string) ([]application.CourseMeeting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, start_time, end_time, room FROM course_meetings
		 WHERE course_id = ? ORDER BY position`, courseID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	meetings := make([]application.CourseMeeting, 0)
	for rows.Next() {
		var meeting application.CourseMeeting
		if err := rows.Scan(&meeting.Day, &meeting.StartTime, &meeting.EndTime, &meeting.Room); err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	return meetings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourseInto(scanner rowScanner) (application.Course, error) {
	var (
		course               application.Course
		createdAt, updatedAt string
	)
	err := scanner.Scan(&course.ID, &course.UserID, &course.Name, &course.Code,
		&course.Instructor, &createdAt, &updatedAt)
	if err != nil {
		return application.Course{}, mapError(err)
	}
	if course.CreatedAt, err = parseTime(createdAt); err != nil {
		return application.Course{}, fmt.Errorf("parse created_at: %w", err)
	}
	if course.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return application.Course{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return course, nil
}

func scanCourse(row *sql.Row) (application.Course, error)      { return scanCourseInto(row) }
func scanCourseRows(rows *sql.Rows) (application.Course, error) { return scanCourseInto(rows) }
