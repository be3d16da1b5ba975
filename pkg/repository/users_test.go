package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
)

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	hash, salt, err := HashPassword("s3cret!")
	require.NoError(t, err)

	ok, err := VerifyPassword("s3cret!", hash, salt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPasswordRejectsWrongPassword(t *testing.T) {
	hash, salt, err := HashPassword("s3cret!")
	require.NoError(t, err)

	ok, err := VerifyPassword("wrong", hash, salt)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashAPIKeyIsDeterministic(t *testing.T) {
	a := HashAPIKey("key-123")
	b := HashAPIKey("key-123")
	c := HashAPIKey("key-456")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

var _ = Describe("UserRepository", func() {
	var (
		repo *UserRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewUserRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("GetByUsername", func() {
		It("returns NotFound for a missing user", func() {
			mock.ExpectQuery("SELECT \\* FROM users WHERE username=\\$1").
				WithArgs("ghost").
				WillReturnRows(sqlmock.NewRows([]string{"id", "username"}))

			_, err := repo.GetByUsername(ctx, "ghost")
			Expect(err).To(HaveOccurred())
			Expect(apperrors.Is(err, apperrors.NotFound)).To(BeTrue())
		})
	})

	Describe("GetByAPIKeyHash", func() {
		It("returns Authentication error when the hash matches nothing", func() {
			mock.ExpectQuery("SELECT \\* FROM users WHERE api_key_hash=\\$1").
				WithArgs("deadbeef").
				WillReturnRows(sqlmock.NewRows([]string{"id", "username"}))

			_, err := repo.GetByAPIKeyHash(ctx, "deadbeef")
			Expect(err).To(HaveOccurred())
			Expect(apperrors.Is(err, apperrors.Authentication)).To(BeTrue())
		})
	})

	Describe("EffectivePermissions", func() {
		It("joins through role_permissions and user_roles", func() {
			rows := sqlmock.NewRows([]string{"id", "resource", "action"}).
				AddRow(int64(1), "jobs", "read").
				AddRow(int64(2), "jobs", "write")
			mock.ExpectQuery("SELECT DISTINCT p\\.\\* FROM permissions p").
				WithArgs(int64(7)).
				WillReturnRows(rows)

			perms, err := repo.EffectivePermissions(ctx, 7)
			Expect(err).ToNot(HaveOccurred())
			Expect(perms).To(HaveLen(2))
		})
	})
})
