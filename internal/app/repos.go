package app

import (
	"github.com/jmoiron/sqlx"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/repository"
)

type Repos struct {
	Enrollments    *repository.EnrollmentRepository
	Progress       *repository.ProgressRepository
	AccessRequests *repository.AccessRequestRepository
	Courses        *repository.CourseRepository
	Students       *repository.StudentRepository
	Consistency    *repository.ConsistencyRepository
}

func wireRepos(db *sqlx.DB) Repos {
	return Repos{
		Enrollments:    repository.NewEnrollmentRepository(db),
		Progress:       repository.NewProgressRepository(db),
		AccessRequests: repository.NewAccessRequestRepository(db),
		Courses:        repository.NewCourseRepository(db),
		Students:       repository.NewStudentRepository(db),
		Consistency:    repository.NewConsistencyRepository(db),
	}
}
