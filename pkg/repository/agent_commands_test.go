package repository

import (
	"context"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

var _ = Describe("AgentCommandRepository", func() {
	var (
		repo *AgentCommandRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewAgentCommandRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Create", func() {
		It("inserts a pending command", func() {
			mock.ExpectExec("INSERT INTO cockpit_agent_commands").
				WillReturnResult(sqlmock.NewResult(1, 1))

			cmd := &models.CockpitAgentCommand{
				AgentID: "agent-1", CommandID: "cmd-1", Command: "ping",
				Status: models.AgentCommandPending, SentAt: time.Now(), SentBy: "alice",
			}
			Expect(repo.Create(ctx, cmd)).To(Succeed())
		})
	})

	Describe("Complete", func() {
		It("transitions a pending command only", func() {
			mock.ExpectExec("UPDATE cockpit_agent_commands").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := repo.Complete(ctx, "cmd-1", models.AgentCommandSuccess, "pong", "", 42)
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("Get", func() {
		It("loads a command by its command_id", func() {
			rows := sqlmock.NewRows([]string{"id", "agent_id", "command_id", "command", "status", "sent_at", "sent_by"}).
				AddRow(int64(1), "agent-1", "cmd-1", "ping", models.AgentCommandSuccess, time.Now(), "alice")
			mock.ExpectQuery("SELECT \\* FROM cockpit_agent_commands WHERE command_id=\\$1").
				WithArgs("cmd-1").
				WillReturnRows(rows)

			out, err := repo.Get(ctx, "cmd-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(out.Command).To(Equal("ping"))
		})
	})
})
