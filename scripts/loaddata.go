// Seeds a migrated activity store with synthetic check traffic so warm-from-
// activity behavior can be exercised against realistic row counts.
//
// Use: fgacache migrate --engine postgres --uri <uri>
//      go run ./scripts/loaddata.go postgres <uri> 100000
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"
)

const (
	batchSize = 500
	writers   = 8
	// Zipf-ish skew: a few tuples get most of the checks, like real traffic.
	hotTuples = 100
)

type activityRow struct {
	Connection string
	User       string
	Relation   string
	Object     string
	Checks     int64
	LastCheck  time.Time
}

func main() {
	if len(os.Args) != 4 {
		log.Fatal("usage: loaddata <postgres|mysql> <uri> <total-rows>")
	}

	argEngine := os.Args[1]
	argConnectionString := os.Args[2]
	argTotalRows, err := strconv.Atoi(os.Args[3])
	if err != nil {
		log.Panic(err)
	}

	var driver string
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	switch argEngine {
	case "postgres":
		driver = "pgx"
		builder = builder.PlaceholderFormat(sq.Dollar)
	case "mysql":
		driver = "mysql"
	default:
		log.Panic("unknown database")
	}

	db, err := sql.Open(driver, argConnectionString)
	if err != nil {
		log.Panic(err)
	}
	defer db.Close()

	start := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(writers)

	for offset := 0; offset < argTotalRows; offset += batchSize {
		n := min(batchSize, argTotalRows-offset)
		rows := generateActivity(offset, n)

		g.Go(func() error {
			return insertBatch(ctx, db, builder, rows)
		})
	}

	if err := g.Wait(); err != nil {
		log.Panic(err)
	}

	log.Printf("inserted %d activity rows in %s", argTotalRows, time.Since(start))
}

func generateActivity(offset, n int) []activityRow {
	now := time.Now().UTC()
	rows := make([]activityRow, 0, n)

	for i := offset; i < offset+n; i++ {
		checks := int64(rand.Intn(10) + 1)
		if i%hotTuples == 0 {
			checks = int64(rand.Intn(5000) + 1000)
		}

		rows = append(rows, activityRow{
			Connection: "default",
			User:       fmt.Sprintf("user:%d", i%(n+offset+1)),
			Relation:   "viewer",
			Object:     fmt.Sprintf("document:%d", i),
			Checks:     checks,
			LastCheck:  now.Add(-time.Duration(rand.Intn(720)) * time.Minute),
		})
	}

	return rows
}

func insertBatch(ctx context.Context, db *sql.DB, builder sq.StatementBuilderType, rows []activityRow) error {
	insert := builder.
		Insert("check_activity").
		Columns("connection_name", "user_key", "relation", "object", "checks", "last_checked_at")

	for _, r := range rows {
		insert = insert.Values(r.Connection, r.User, r.Relation, r.Object, r.Checks, r.LastCheck)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, query, args...)
	return err
}
