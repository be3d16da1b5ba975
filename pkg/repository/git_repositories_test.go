package repository

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

var _ = Describe("GitRepositoryRepository", func() {
	var (
		repo *GitRepositoryRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewGitRepositoryRepository(db)
		ctx = context.Background()
	})

	Describe("Create", func() {
		It("inserts and scans the generated id", func() {
			mock.ExpectQuery("INSERT INTO git_repositories").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

			g := &models.GitRepository{Name: "configs", URL: "https://git.example.com/configs.git", Branch: "main", Category: "backup", AuthType: models.GitAuthToken, Active: true}
			out, err := repo.Create(ctx, g)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.ID).To(Equal(int64(7)))
		})
	})

	Describe("GetByCategory", func() {
		It("returns the active repository for a category", func() {
			rows := sqlmock.NewRows([]string{"id", "name", "url", "branch", "category", "credential_name", "auth_type", "verify_ssl", "path", "active"}).
				AddRow(int64(1), "configs", "https://git.example.com/configs.git", "main", "backup", "git-cred", "token", true, "/repo", true)
			mock.ExpectQuery("SELECT \\* FROM git_repositories WHERE category=\\$1 AND active=true").
				WithArgs("backup").
				WillReturnRows(rows)

			out, err := repo.GetByCategory(ctx, "backup")
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Name).To(Equal("configs"))
			Expect(out.AuthType).To(Equal(models.GitAuthToken))
		})

		It("returns NotFound when nothing matches", func() {
			mock.ExpectQuery("SELECT \\* FROM git_repositories WHERE category=\\$1 AND active=true").
				WithArgs("unused").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "url", "branch", "category", "credential_name", "auth_type", "verify_ssl", "path", "active"}))

			_, err := repo.GetByCategory(ctx, "unused")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("errors when no row is affected", func() {
			mock.ExpectExec("DELETE FROM git_repositories WHERE id=\\$1").
				WithArgs(int64(99)).
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.Delete(ctx, 99)
			Expect(err).To(HaveOccurred())
		})
	})
})
