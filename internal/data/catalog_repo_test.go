package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	apperrors "github.com/srbenoit/mathops-sub032/internal/errors"
	"github.com/srbenoit/mathops-sub032/internal/testutil"
)

func TestCatalogRepo(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewCatalogRepo(db)

		term, err := repo.ActiveTerm(ctx)
		require.NoError(t, err)
		assert.Nil(t, term, "no active term before seeding")

		testutil.NewSeeder(t, db).Term("SP26", false).StandardCatalog("FA26")

		term, err = repo.ActiveTerm(ctx)
		require.NoError(t, err)
		require.NotNil(t, term)
		assert.Equal(t, "FA26", term.TermID)

		cs, err := repo.GetCourseSection(ctx, "FA26", model.RegistrationKey{CourseID: "M 117", SectionID: "001"})
		require.NoError(t, err)
		require.NotNil(t, cs)
		assert.Equal(t, model.RuleSetStrict, cs.PacingStructure)

		cs, err = repo.GetCourseSection(ctx, "FA26", model.RegistrationKey{CourseID: "M 117", SectionID: "999"})
		require.NoError(t, err)
		assert.Nil(t, cs)

		ps, err := repo.GetPacingStructure(ctx, "FA26", model.RuleSetOpen)
		require.NoError(t, err)
		require.NotNil(t, ps)
		assert.True(t, ps.Paced())

		ps, err = repo.GetPacingStructure(ctx, "FA26", "Z")
		require.NoError(t, err)
		assert.Nil(t, ps)
	})
}

func TestCatalogRepo_SingleActiveTerm(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		testutil.NewSeeder(t, db).Term("FA26", true)

		_, err := db.ExecContext(context.Background(), `INSERT INTO terms (term_id, active) VALUES ('SP27', TRUE)`)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(apperrors.MapDBError(err)))
	})
}

func TestUserLoginRepo(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewUserLoginRepo(db)

		_, err := repo.GetByUsername(ctx, "ada")
		assert.True(t, apperrors.IsNotFound(err))

		login := &model.UserLogin{
			Username:     "Ada",
			UserID:       "823000001",
			PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$a2V5",
			Role:         "STU",
			FirstName:    "Ada",
		}
		require.NoError(t, repo.Upsert(ctx, login))

		got, err := repo.GetByUsername(ctx, "ADA")
		require.NoError(t, err)
		assert.Equal(t, "ada", got.Username)
		assert.Equal(t, "823000001", got.UserID)

		login.Role = "ADM"
		require.NoError(t, repo.Upsert(ctx, login))
		got, err = repo.GetByUsername(ctx, "ada")
		require.NoError(t, err)
		assert.Equal(t, "ADM", got.Role)

		err = repo.Upsert(ctx, &model.UserLogin{Username: "x"})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestStudentDirectory(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		testutil.NewSeeder(t, db).Student("823000001", "Ada", "Lovelace")
		dir := NewStudentDirectory(db)

		who, err := dir.LookupUser(ctx, "823000001")
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", who.DisplayName())

		_, err = dir.LookupUser(ctx, "823000009")
		assert.True(t, apperrors.IsNotFound(err))
	})
}
