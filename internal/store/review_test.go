package store_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/osiDTDr/ai-contract-review/core/db"
	"github.com/osiDTDr/ai-contract-review/internal/model"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/store"
)

type execCall struct {
	sql  string
	args []any
}

type fakeConn struct {
	execs   []execCall
	execErr func(sql string) error
	row     pgx.Row
	rows    pgx.Rows
	queries []execCall
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		if err := f.execErr(sql); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, execCall{sql: sql, args: args})
	if f.rows == nil {
		return nil, errors.New("no rows configured")
	}
	return f.rows, nil
}

func (f *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return f.row
}

type fakeDB struct {
	conn       *fakeConn
	txCommits  int
	txRollback int
}

func (f *fakeDB) Conn() db.DBTX { return f.conn }

func (f *fakeDB) WithTx(ctx context.Context, fn func(tx db.DBTX) error) error {
	if err := fn(f.conn); err != nil {
		f.txRollback++
		return err
	}
	f.txCommits++
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// fakeRows scans each row's values into the destinations by assignment.
type fakeRows struct {
	values [][]any
	pos    int
	closed bool
}

func (r *fakeRows) Close() { r.closed = true }
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte { return nil }
func (r *fakeRows) Conn() *pgx.Conn { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.values[r.pos-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.values[r.pos-1]
	if len(row) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

var _ = Describe("ReviewStore", func() {
	var (
		ctx   context.Context
		conn  *fakeConn
		fdb   *fakeDB
		s     store.ReviewStore
		trace []review.TraceEntry
	)

	BeforeEach(func() {
		ctx = context.Background()
		conn = &fakeConn{}
		fdb = &fakeDB{conn: conn}
		s = store.NewReviewStore(fdb)
		started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		trace = []review.TraceEntry{
			{StageName: review.StageParse, Status: review.StatusCompleted, StartedAt: started, DurationMs: 1},
			{StageName: review.StageAnalyze, Status: review.StatusFailed, StartedAt: started, DurationMs: 30, Error: "analyze_risks: boom"},
		}
	})

	Describe("Create", func() {
		It("writes the review and one stage row per trace entry in one transaction", func() {
			r := &model.Review{ID: 7, Status: model.ReviewStatusFailed, Trace: trace, CreatedAt: time.Now()}

			Expect(s.Create(ctx, r)).To(Succeed())

			Expect(fdb.txCommits).To(Equal(1))
			Expect(conn.execs).To(HaveLen(3))
			Expect(conn.execs[0].sql).To(ContainSubstring("INSERT INTO reviews"))
			Expect(conn.execs[0].args[8]).To(Equal([]byte("[]")))
			Expect(conn.execs[2].sql).To(ContainSubstring("INSERT INTO review_stages"))
			Expect(conn.execs[2].args[1]).To(Equal(2))
			Expect(conn.execs[2].args[2]).To(Equal(review.StageAnalyze))
		})

		It("rolls back when a stage row fails", func() {
			conn.execErr = func(sql string) error {
				if strings.Contains(sql, "review_stages") {
					return errors.New("constraint")
				}
				return nil
			}

			err := s.Create(ctx, &model.Review{ID: 7, Trace: trace})
			Expect(err).To(MatchError(ContainSubstring("insert review stage parse")))
			Expect(fdb.txRollback).To(Equal(1))
		})
	})

	Describe("Get", func() {
		It("maps missing rows to ErrNotFound", func() {
			conn.row = errRow{err: pgx.ErrNoRows}
			_, err := s.Get(ctx, 1)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("passes other scan errors through", func() {
			conn.row = errRow{err: errors.New("conn reset")}
			_, err := s.Get(ctx, 1)
			Expect(err).To(MatchError("conn reset"))
		})
	})

	Describe("ListStages", func() {
		It("reads the stage rows of one review in order", func() {
			msg := "analyze_risks: boom"
			started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			rows := &fakeRows{values: [][]any{
				{int64(7), 1, review.StageParse, "completed", (*string)(nil), started, int64(1)},
				{int64(7), 2, review.StageAnalyze, "failed", &msg, started, int64(30)},
			}}
			conn.rows = rows

			stages, err := s.ListStages(ctx, 7)

			Expect(err).NotTo(HaveOccurred())
			Expect(conn.queries).To(HaveLen(1))
			Expect(conn.queries[0].sql).To(ContainSubstring("ORDER BY seq"))
			Expect(conn.queries[0].args).To(Equal([]any{int64(7)}))
			Expect(stages).To(HaveLen(2))
			Expect(stages[0].Error).To(BeNil())
			Expect(stages[1].Stage).To(Equal(review.StageAnalyze))
			Expect(*stages[1].Error).To(Equal(msg))
			Expect(rows.closed).To(BeTrue())
		})

		It("returns an empty slice when the review has no stages", func() {
			conn.rows = &fakeRows{}
			stages, err := s.ListStages(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(stages).To(BeEmpty())
			Expect(stages).NotTo(BeNil())
		})
	})

	Describe("StageRows", func() {
		It("numbers stages from one and keeps stage errors", func() {
			rows := store.StageRows(9, trace)
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].Seq).To(Equal(1))
			Expect(rows[0].Error).To(BeNil())
			Expect(*rows[1].Error).To(Equal("analyze_risks: boom"))
			Expect(rows[1].ReviewID).To(Equal(int64(9)))
		})
	})
})

var _ = Describe("Migrate", func() {
	It("splits the embedded schema into statements", func() {
		stmts := store.Statements("CREATE TABLE a (x int);\n\n CREATE INDEX b ON a (x);\n")
		Expect(stmts).To(Equal([]string{"CREATE TABLE a (x int)", "CREATE INDEX b ON a (x)"}))
	})

	It("executes every schema statement", func() {
		conn := &fakeConn{}
		Expect(store.Migrate(context.Background(), conn)).To(Succeed())
		Expect(len(conn.execs)).To(BeNumerically(">=", 4))
		Expect(conn.execs[0].sql).To(HavePrefix("CREATE TABLE IF NOT EXISTS reviews"))
	})
})
