package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mkihara/harudb/engine"
	"github.com/mkihara/harudb/execution"
	"github.com/mkihara/harudb/expr"
	"github.com/mkihara/harudb/plan"
	"github.com/mkihara/harudb/tuple"
)

var (
	configPath string
	log        = logrus.New()
)

func loadConfig() (engine.Config, error) {
	if configPath == "" {
		return engine.DefaultConfig(), nil
	}
	return engine.LoadConfig(configPath)
}

func main() {
	root := &cobra.Command{
		Use:           "harudb",
		Short:         "harudb is a teaching-grade disk-backed relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	root.AddCommand(initCmd(), statsCmd(), demoCmd())
	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create the data directory and an empty data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := engine.Open(cfg, log)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print buffer pool and data file counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := engine.Open(cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()
			for name, v := range db.Stats() {
				fmt.Printf("%s: %d\n", name, v)
			}
			return nil
		},
	}
}

// demoCmd runs a tiny workload against a throwaway data directory:
// create two tables, insert rows and join them.
func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "run a small insert/scan/join workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.DataDir, err = os.MkdirTemp("", "harudb-demo-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(cfg.DataDir)

			db, err := engine.Open(cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()
			return runDemo(db)
		},
	}
}

func runDemo(db *engine.DB) error {
	schema := tuple.NewSchema(
		tuple.Column{Name: "id", Kind: tuple.KindInt},
		tuple.Column{Name: "name", Kind: tuple.KindString},
	)
	users, err := db.Catalog().CreateTable("users", schema)
	if err != nil {
		return err
	}
	if _, err := db.Catalog().CreateIndex("users", "users_id", 0); err != nil {
		return err
	}
	orders, err := db.Catalog().CreateTable("orders", schema)
	if err != nil {
		return err
	}

	tx := db.Begin()
	ctx := db.ExecContext(tx)
	ins := execution.NewInsertExecutor(ctx, &plan.InsertPlan{
		TableOID: users.OID,
		RawValues: []*tuple.Tuple{
			tuple.NewTuple(tuple.NewIntValue(1), tuple.NewStringValue("alice")),
			tuple.NewTuple(tuple.NewIntValue(2), tuple.NewStringValue("bob")),
		},
	}, nil)
	if err := runStatement(ins); err != nil {
		return err
	}
	ins = execution.NewInsertExecutor(ctx, &plan.InsertPlan{
		TableOID: orders.OID,
		RawValues: []*tuple.Tuple{
			tuple.NewTuple(tuple.NewIntValue(1), tuple.NewStringValue("book")),
			tuple.NewTuple(tuple.NewIntValue(2), tuple.NewStringValue("pen")),
			tuple.NewTuple(tuple.NewIntValue(1), tuple.NewStringValue("ink")),
		},
	}, nil)
	if err := runStatement(ins); err != nil {
		return err
	}
	if err := db.Commit(tx); err != nil {
		return err
	}

	tx2 := db.Begin()
	ctx2 := db.ExecContext(tx2)
	join := execution.NewHashJoinExecutor(ctx2, &plan.HashJoinPlan{
		LeftKeyExpr:  expr.NewColumnValue(0),
		RightKeyExpr: expr.NewColumnValue(0),
		LeftSchema:   schema,
		RightSchema:  schema,
		OutputSchema: tuple.NewSchema(
			tuple.Column{Name: "user", Kind: tuple.KindString},
			tuple.Column{Name: "item", Kind: tuple.KindString},
		),
		OutputExprs: []expr.Expression{
			expr.NewJoinColumnValue(expr.SideLeft, 1),
			expr.NewJoinColumnValue(expr.SideRight, 1),
		},
	},
		execution.NewSeqScanExecutor(ctx2, &plan.SeqScanPlan{
			TableOID:     users.OID,
			OutputSchema: schema,
			OutputExprs:  []expr.Expression{expr.NewColumnValue(0), expr.NewColumnValue(1)},
		}),
		execution.NewSeqScanExecutor(ctx2, &plan.SeqScanPlan{
			TableOID:     orders.OID,
			OutputSchema: schema,
			OutputExprs:  []expr.Expression{expr.NewColumnValue(0), expr.NewColumnValue(1)},
		}))
	if err := join.Init(); err != nil {
		return err
	}
	for {
		row, _, err := join.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s ordered %s\n", row.Value(0).Str(), row.Value(1).Str())
	}
	return db.Commit(tx2)
}

// runStatement drives a write-only executor to completion
func runStatement(e execution.Executor) error {
	if err := e.Init(); err != nil {
		return err
	}
	if _, _, err := e.Next(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
